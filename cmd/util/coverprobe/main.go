// coverprobe resolves one book through the full cover pipeline and
// prints the provenance record, for debugging provider behavior from a
// shell.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/pagebound/jacket/asset"
	"github.com/pagebound/jacket/config"
	"github.com/pagebound/jacket/pkg/cover"

	// Cover sources register themselves at init time.
	_ "github.com/pagebound/jacket/pkg/cover/sources/google"
	_ "github.com/pagebound/jacket/pkg/cover/sources/longitood"
	_ "github.com/pagebound/jacket/pkg/cover/sources/openlibrary"
)

func main() {
	configPath := flag.String("config", "jacket.toml", "path to the TOML config file")
	isbn13 := flag.String("isbn13", "", "ISBN-13 to resolve")
	isbn10 := flag.String("isbn10", "", "ISBN-10 to resolve")
	id := flag.String("id", "", "catalog volume id to resolve")
	hint := flag.String("hint", "", "provider cover URL to try first")
	flag.Parse()

	if *isbn13 == "" && *isbn10 == "" && *id == "" {
		fmt.Fprintln(os.Stderr, "need one of -isbn13, -isbn10 or -id")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}
	cfg.SetProvenanceDebug(true)

	svc, err := cover.NewService(cfg, asset.NewManager(), nil, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "building cover service: %v\n", err)
		os.Exit(1)
	}

	book := cover.Book{ID: *id, ISBN13: *isbn13, ISBN10: *isbn10, CoverURL: *hint}
	desc, rec := svc.ConvergeNow(context.Background(), book)

	fmt.Printf("Resolved %s -> %s (%s, %dx%d)\n",
		book.Fingerprint(), desc.Location, desc.Provider, desc.Width, desc.Height)

	doc, err := rec.JSON()
	if err != nil {
		fmt.Fprintf(os.Stderr, "serializing provenance: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(doc))
}
