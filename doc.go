// Package lazyblob tracks large data files next to code without putting
// their bytes in version control.
//
// A project is a directory holding lazyblob.yml, a manifest that records
// every observed version of each tracked file: its path, content hash, the
// source files that used it and where it was downloaded from. File contents
// live in a content-addressed cache shared by all projects and can be pushed
// to and pulled from a remote (S3, GCS, Azure, a plain URL, a local folder
// or an OCI registry).
//
// Tracking a file from code:
//
//	p, _ := lazyblob.Open(".")
//	defer p.Close()
//
//	// Records data/train.csv, restores it if it is missing or stale,
//	// and notes the calling source file as a user of this version.
//	path, err := p.Track(ctx, "data/train.csv")
//
//	// Downloads the file on first use and remembers where it came from.
//	path, err = p.Track(ctx, "data/iris.csv",
//	    lazyblob.WithSource("https://example.com/iris.csv"))
//
// Sharing the cache:
//
//	p.AddRemote(ctx, "s3://bucket/datasets", "")
//	p.Push(ctx)
//	p.Pull(ctx)                      // everything
//	p.Pull(ctx, "scripts/train.go")  // only what train.go used
package lazyblob
