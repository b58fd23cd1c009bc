// Command palanteer-server accepts producer connections, decodes each
// one's wire stream (spec.md §4.C6) and builds a queryable columnar
// record per stream (spec.md §4.C7-C11).
//
// It is cmd/memlat restructured: memlat parses one perf.data file up
// front and then serves it over HTTP for the rest of the process's
// life; palanteer-server instead never stops parsing — every accepted
// connection is its own long-lived stream, ingested concurrently with
// every other one, for as long as its producer stays connected.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"net"
	"os"

	"github.com/palanteer-go/palanteer/internal/palog"
	"github.com/palanteer-go/palanteer/plstring"
	"github.com/palanteer-go/palanteer/plwire"
	"github.com/palanteer-go/palanteer/record"
)

func main() {
	var (
		flagListen = flag.String("listen", ":59213", "accept producer connections on `address`")
		flagOut    = flag.String("out", "records", "write chunk files under `dir`, one per accepted stream")
	)
	flag.Parse()
	if flag.NArg() > 0 {
		flag.Usage()
		os.Exit(1)
	}

	if err := os.MkdirAll(*flagOut, 0o755); err != nil {
		palog.Errorf("%v", err)
		os.Exit(1)
	}

	ln, err := net.Listen("tcp", *flagListen)
	if err != nil {
		palog.Errorf("%v", err)
		os.Exit(1)
	}
	defer ln.Close()
	palog.Infof("listening on %s, records under %s", *flagListen, *flagOut)

	catalog := record.NewCatalog()
	for {
		conn, err := ln.Accept()
		if err != nil {
			palog.Warnf("accept: %v", err)
			continue
		}
		go ingest(catalog, *flagOut, conn)
	}
}

// ingest runs for the lifetime of one producer connection: it decodes
// the handshake, opens a chunk file under dir, then replays every
// STRING/EVENT block into the stream's Builder. After each block it
// publishes a Delta and merges it into a View (spec.md §4.C11), the
// same mailbox contract a live viewer process would consume — proof
// the builder never blocks a concurrent reader's snapshot, even though
// no such reader process exists in this core pipeline's scope.
func ingest(catalog *record.Catalog, dir string, conn net.Conn) {
	defer conn.Close()
	addr := conn.RemoteAddr()

	r := plwire.NewReader(conn)
	if !r.Next() || r.Block.Type != plwire.BlockControl || r.Block.Command != plwire.CmdHandshake {
		palog.Warnf("%s: did not open with a handshake, dropping", addr)
		return
	}
	hs := r.Block.Handshake

	f, err := os.CreateTemp(dir, "stream-*.plchunks")
	if err != nil {
		palog.Errorf("%s: create record file: %v", addr, err)
		return
	}
	defer f.Close()

	strings := plstring.NewTable(hs.Flags&plwire.HeaderExternalStrings != 0)
	store := record.NewStore(f, binary.BigEndian)
	stream := catalog.Register(hs.AppName, strings, store)
	publisher := record.NewDeltaPublisher(stream)
	view := record.NewView()

	palog.Infof("%s: stream %s (%q) connected", addr, stream.ID, hs.AppName)

feed:
	for r.Next() {
		switch r.Block.Type {
		case plwire.BlockString, plwire.BlockEvent, plwire.BlockEventAux:
			if err := stream.Builder.FeedBlock(r.Block); err != nil {
				palog.Warnf("%s: stream %s feed: %v", addr, stream.ID, err)
				break feed
			}
			view.Merge(publisher.Publish())
		case plwire.BlockControl:
			// CLI replies and freeze/kill acks are a plremote concern
			// on the producer side; the ingestion loop only needs to
			// keep decoding frames, so there is nothing to act on yet.
		}
	}
	if err := r.Err(); err != nil {
		// Transport error: finalize with whatever is persisted and
		// warn, rather than discard the stream (spec.md §7(b)).
		palog.Warnf("%s: stream %s lost: %v", addr, stream.ID, err)
	}

	if err := stream.Builder.Finalize(); err != nil {
		palog.Errorf("%s: stream %s finalize: %v", addr, stream.ID, err)
	}
	view.Merge(publisher.Publish())
	catalog.Remove(stream.ID)

	errs, overflow := view.Errors()
	palog.Infof("%s: stream %s disconnected (%s), %d errors, %d overflow",
		addr, stream.ID, fmt.Sprintf("%d threads, %d elems", len(stream.Builder.Threads()), len(stream.Builder.Elems())),
		len(errs), overflow)
}
