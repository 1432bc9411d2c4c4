/*
Package operations implements the operation dispatcher of the file service.

A Request names one operation of a closed vocabulary (index, preview,
subfolders, download, download_archive, search, newfolder, newfile, rename,
move, delete, upload, archive, unarchive, save). Dispatch validates the
name, runs the Authorizer, resolves the principal's adapter and the target
path, then runs the operation's Handler. Every failure, including panics, is
translated into an Envelope with the status of its vfs.Kind; nothing else
leaves the dispatcher.

	d := operations.NewDispatcher(registry, engine,
		operations.WithLogger(logger),
		operations.WithMetrics(metrics),
	)
	res := d.Dispatch(ctx, &operations.Request{
		Principal: "alice",
		Caller:    "alice",
		Operation: "index",
		Query:     operations.Query{Path: "document://"},
	})
	defer res.Close()
*/
package operations
