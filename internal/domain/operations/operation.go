package operations

import (
	"github.com/kanbang/xdesktop/internal/domain/vfs"
)

// Operation is one entry of the closed operation vocabulary.
type Operation int

const (
	OpIndex Operation = iota
	OpPreview
	OpSubfolders
	OpDownload
	OpDownloadArchive
	OpSearch
	OpNewFolder
	OpNewFile
	OpRename
	OpMove
	OpDelete
	OpUpload
	OpArchive
	OpUnarchive
	OpSave

	numOperations
)

var operationNames = [numOperations]string{
	OpIndex:           "index",
	OpPreview:         "preview",
	OpSubfolders:      "subfolders",
	OpDownload:        "download",
	OpDownloadArchive: "download_archive",
	OpSearch:          "search",
	OpNewFolder:       "newfolder",
	OpNewFile:         "newfile",
	OpRename:          "rename",
	OpMove:            "move",
	OpDelete:          "delete",
	OpUpload:          "upload",
	OpArchive:         "archive",
	OpUnarchive:       "unarchive",
	OpSave:            "save",
}

var operationsByName = func() map[string]Operation {
	m := make(map[string]Operation, numOperations)
	for op, name := range operationNames {
		m[name] = Operation(op)
	}
	return m
}()

// String returns the wire name of the operation
func (o Operation) String() string {
	if o < 0 || o >= numOperations {
		return "unknown"
	}
	return operationNames[o]
}

// Valid reports whether o belongs to the vocabulary.
func (o Operation) Valid() bool {
	return o >= 0 && o < numOperations
}

// Public reports whether anonymous callers may run the operation.
func (o Operation) Public() bool {
	return o == OpPreview || o == OpDownload
}

// Mutating reports whether the operation writes to an adapter.
func (o Operation) Mutating() bool {
	switch o {
	case OpNewFolder, OpNewFile, OpRename, OpMove, OpDelete, OpUpload, OpArchive, OpUnarchive, OpSave:
		return true
	}
	return false
}

// ParseOperation maps a wire name onto the vocabulary.
func ParseOperation(name string) (Operation, error) {
	if op, ok := operationsByName[name]; ok {
		return op, nil
	}
	if name == "" {
		return -1, vfs.Errorf(vfs.KindUnknownOperation, "dispatch", "", "missing operation")
	}
	return -1, vfs.Errorf(vfs.KindUnknownOperation, "dispatch", "", "unknown operation %q", name)
}

// All returns every operation in declaration order.
func All() []Operation {
	ops := make([]Operation, numOperations)
	for i := range ops {
		ops[i] = Operation(i)
	}
	return ops
}
