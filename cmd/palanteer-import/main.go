// Command palanteer-import is the offline half of spec.md §6's CLI
// surface: import a captured .pltraw block stream into a record file,
// inspect or delete an existing record, and round-trip its external-
// string sidecar. It is cmd/dump's subcommand-dispatch style (flag.
// FlagSet per verb) applied to records instead of perf.data files.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"os"

	"github.com/ianlancetaylor/demangle"

	"github.com/palanteer-go/palanteer/internal/palog"
	"github.com/palanteer-go/palanteer/plstring"
	"github.com/palanteer-go/palanteer/plwire"
	"github.com/palanteer-go/palanteer/record"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	var err error
	switch os.Args[1] {
	case "import":
		err = runImport(os.Args[2:])
	case "load":
		err = runLoad(os.Args[2:])
	case "delete":
		err = runDelete(os.Args[2:])
	case "extstr":
		err = runExtstr(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		palog.Errorf("%v", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: palanteer-import {import|load|delete|extstr} [flags]")
}

// runImport replays a .pltraw file (spec.md §5 S5: "import a .pltraw
// file twice; both loads yield byte-identical record files") through
// the same plwire.Reader/Builder.FeedBlock pipeline a live producer
// connection drives, so importing is never a second code path to keep
// in sync with ingestion.
func runImport(args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	in := fs.String("in", "", "read a captured `file.pltraw` block stream")
	out := fs.String("out", "", "write the record's chunk file to `path`")
	demangleNames := fs.Bool("demangle", false, "write a demangled.tsv sidecar next to -out for any C++ symbol in the string table")
	fs.Parse(args)
	if *in == "" || *out == "" {
		fs.Usage()
		return fmt.Errorf("palaneer-import: -in and -out are required")
	}

	raw, err := os.Open(*in)
	if err != nil {
		return err
	}
	defer raw.Close()

	r := plwire.NewReader(raw)
	if !r.Next() || r.Block.Type != plwire.BlockControl || r.Block.Command != plwire.CmdHandshake {
		return fmt.Errorf("palanteer-import: %s does not open with a handshake", *in)
	}
	hs := r.Block.Handshake

	outFile, err := os.Create(*out)
	if err != nil {
		return err
	}
	defer outFile.Close()

	strings := plstring.NewTable(hs.Flags&plwire.HeaderExternalStrings != 0)
	store := record.NewStore(outFile, binary.BigEndian)
	b := record.NewBuilder(strings, store)

	for r.Next() {
		if r.Block.Type == plwire.BlockControl {
			continue
		}
		if err := b.FeedBlock(r.Block); err != nil {
			return fmt.Errorf("palanteer-import: %w", err)
		}
	}
	if err := r.Err(); err != nil {
		return fmt.Errorf("palanteer-import: %s: %w", *in, err)
	}
	if err := b.Finalize(); err != nil {
		return err
	}

	palog.Infof("imported %s (%q): %d threads, %d elems, %d errors",
		*in, hs.AppName, len(b.Threads()), len(b.Elems()), len(b.Errors()))

	if *demangleNames {
		return writeDemangled(*out+".demangled.tsv", strings)
	}
	return nil
}

// writeDemangled runs every interned string through demangle.Filter,
// which returns its argument unchanged when it is not a mangled C++
// name, and records only the entries that actually changed.
func writeDemangled(path string, strings *plstring.Table) error {
	strings.Sort()
	var entries []plstring.Entry
	for i := 0; i < strings.Len(); i++ {
		e := strings.At(i)
		if readable := demangle.Filter(e.Value); readable != e.Value {
			e.Value = readable
			entries = append(entries, e)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := plstring.WriteSidecar(f, entries); err != nil {
		return err
	}
	palog.Infof("wrote %d demangled symbol(s) to %s", len(entries), path)
	return nil
}

// runLoad reports a stored record's chunk-file size as a cheap sanity
// check before pointing a server or viewer at it.
func runLoad(args []string) error {
	fs := flag.NewFlagSet("load", flag.ExitOnError)
	path := fs.String("record", "", "path to a record's chunk `file`")
	fs.Parse(args)
	if *path == "" {
		fs.Usage()
		return fmt.Errorf("palanteer-import: -record is required")
	}
	fi, err := os.Stat(*path)
	if err != nil {
		return err
	}
	palog.Infof("%s: %d bytes", *path, fi.Size())
	return nil
}

// runDelete removes a record's chunk file, requiring -f to avoid an
// accidental loss of recorded data (spec.md §6: "delete records").
func runDelete(args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	path := fs.String("record", "", "path to a record's chunk `file`")
	force := fs.Bool("f", false, "skip the confirmation check")
	fs.Parse(args)
	if *path == "" {
		fs.Usage()
		return fmt.Errorf("palanteer-import: -record is required")
	}
	if !*force {
		return fmt.Errorf("palanteer-import: refusing to delete %s without -f", *path)
	}
	if err := os.Remove(*path); err != nil {
		return err
	}
	palog.Infof("deleted %s", *path)
	return nil
}

// runExtstr round-trips an external-string sidecar, letting an
// operator update a looked-up name after the fact (spec.md §6:
// "update external-string lookup").
func runExtstr(args []string) error {
	fs := flag.NewFlagSet("extstr", flag.ExitOnError)
	in := fs.String("in", "", "read an existing sidecar `file`")
	out := fs.String("out", "", "write the updated sidecar to `file`")
	set := fs.String("set", "", "hex `hash`=text to add or overwrite before writing -out")
	fs.Parse(args)
	if *in == "" || *out == "" {
		fs.Usage()
		return fmt.Errorf("palanteer-import: -in and -out are required")
	}

	f, err := os.Open(*in)
	if err != nil {
		return err
	}
	byHash, err := plstring.ReadSidecar(f)
	f.Close()
	if err != nil {
		return err
	}

	if *set != "" {
		if err := applySet(byHash, *set); err != nil {
			return err
		}
	}

	entries := make([]plstring.Entry, 0, len(byHash))
	for _, e := range byHash {
		entries = append(entries, e)
	}

	outFile, err := os.Create(*out)
	if err != nil {
		return err
	}
	defer outFile.Close()
	if err := plstring.WriteSidecar(outFile, entries); err != nil {
		return err
	}
	palog.Infof("wrote %d sidecar entries to %s", len(entries), *out)
	return nil
}

func applySet(byHash map[plstring.Hash]plstring.Entry, spec string) error {
	var hexHash, text string
	for i := 0; i < len(spec); i++ {
		if spec[i] == '=' {
			hexHash, text = spec[:i], spec[i+1:]
			break
		}
	}
	if hexHash == "" {
		return fmt.Errorf("palanteer-import: -set must be hash=text, got %q", spec)
	}
	var h uint64
	if _, err := fmt.Sscanf(hexHash, "%x", &h); err != nil {
		return fmt.Errorf("palanteer-import: bad hash in -set %q: %w", spec, err)
	}
	byHash[plstring.Hash(h)] = plstring.Entry{Hash: plstring.Hash(h), Value: text}
	return nil
}
