// Package lib provides a Go SDK to preload web asset manifests programmatically.
//
// A preload loads every asset of a manifest concurrently, reports a monotonic
// 0-100 progress while assets settle and fires a ready signal exactly once,
// shortly after the last asset settles. A failing asset never blocks the
// ready signal, it just counts as settled.
//
// # Quick Start
//
//	client, err := lib.New(ctx, lib.Config{BaseFS: os.DirFS("./public")})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	run, err := client.Preload(ctx, lib.Manifest{
//	    Name: "home",
//	    Assets: []lib.Asset{
//	        {Kind: lib.AssetKindImage, Source: "/img/hero.webp"},
//	        {Kind: lib.AssetKindFont, Source: "/fonts/mono.ttf", FontFamily: "Club Mono"},
//	        {Kind: lib.AssetKindVideo, Source: "https://cdn.example.com/intro.mp4"},
//	    },
//	}, lib.PreloadOpts{
//	    OnProgress: func(p lib.Progress) { fmt.Printf("%d%%\n", p.Percent) },
//	    OnReady:    func() { fmt.Println("ready") },
//	})
//
// # Sessions
//
// [Client.Start] returns right away with a [Session] that can be waited on,
// observed or torn down. Tearing down a session before it's ready guarantees the
// ready signal is never fired:
//
//	session, _ := client.Start(ctx, manifest, lib.PreloadOpts{OnReady: showPage})
//	defer session.Teardown()
//	<-session.Done()
//
// # Sources
//
// Sources starting with http:// or https:// are fetched with [Config].HTTPClient,
// everything else is read from [Config].BaseFS.
//
// # History
//
// Runs done with [Client.Preload] are recorded in a SQLite database, unless
// [Config].NoHistory is set. Use [Client.ListRuns] and [Client.GetRun] to read them.
//
// # Error Handling
//
// Methods return errors that can be inspected with [errors.Is]:
//
//   - [ErrNotFound]: Resource does not exist.
//   - [ErrAlreadyExists]: Resource with the same ID already exists.
//   - [ErrNotValid]: Invalid input.
//
// # Thread Safety
//
// A [Client] is safe for concurrent use from multiple goroutines, each
// [Client.Start] call is an independent preload.
package lib
