package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/postings"
)

var sectionNames = [...]string{"documents", "schema", "dictionary", "live", "postings"}

func main() {
	useMmap := flag.Bool("mmap", true, "memory-map the file instead of reading it")
	raw := flag.Bool("raw", false, "file is a bare posting-list store, not a generation")
	term := flag.String("term", "", "print the posting list of this term")
	top := flag.Int("top", 10, "number of longest posting lists to show")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: inspect [flags] <file>")
		flag.PrintDefaults()
		os.Exit(2)
	}
	path := flag.Arg(0)

	var err error
	if *raw {
		err = inspectStore(path, *top)
	} else {
		err = inspectGeneration(path, *useMmap, *term, *top)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "inspect %s: %v\n", path, err)
		os.Exit(1)
	}
}

func inspectGeneration(path string, useMmap bool, term string, top int) error {
	r, err := segment.OpenReader(path, useMmap)
	if err != nil {
		return err
	}
	defer r.Close()

	schema := r.Schema()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "generation\t%d\n", r.Generation())
	fmt.Fprintf(w, "primary key\t%s\n", schema.PrimaryKey)
	fmt.Fprintf(w, "fields\t%v\n", schema.Fields)
	fmt.Fprintf(w, "documents\t%d live / %d stored\n", r.DocCount(), len(r.Documents()))
	fmt.Fprintf(w, "terms\t%d\n", r.Terms())
	fmt.Fprintf(w, "criteria\t%v\n", schema.Settings.Criteria)
	for i, s := range r.Sections() {
		fmt.Fprintf(w, "section %s\toffset=%d length=%d\n", sectionNames[i], s.Offset, s.Length)
	}
	w.Flush()

	store := r.Postings()
	fmt.Println()
	printStore(store, r.Dictionary(), top)

	if term == "" {
		return nil
	}
	dict := r.Dictionary()
	id := sort.SearchStrings(dict, term)
	if id == len(dict) || dict[id] != term {
		return fmt.Errorf("term %q not in dictionary", term)
	}
	list, ok := store.Get(uint64(id))
	if !ok {
		return fmt.Errorf("term %q has no posting list", term)
	}
	fmt.Printf("\npostings of %q (%d):\n", term, list.Len())
	for e := range list.All() {
		fmt.Println(" ", e)
	}
	return nil
}

func inspectStore(path string, top int) error {
	store, err := postings.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()
	printStore(store, nil, top)
	return nil
}

func printStore(store *postings.Store, dict []string, top int) {
	type listLen struct {
		id  uint64
		len int
	}
	var lens []listLen
	for id, l := range store.All() {
		lens = append(lens, listLen{id, l.Len()})
	}
	sort.Slice(lens, func(i, j int) bool {
		if lens[i].len != lens[j].len {
			return lens[i].len > lens[j].len
		}
		return lens[i].id < lens[j].id
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "store mode\t%s\n", store.Mode())
	fmt.Fprintf(w, "lists\t%d\n", store.Len())
	fmt.Fprintf(w, "entries\t%d\n", store.EntryCount())
	fmt.Fprintf(w, "bytes\t%d\n", store.Size())
	if len(lens) > top {
		lens = lens[:top]
	}
	for _, l := range lens {
		name := fmt.Sprintf("#%d", l.id)
		if l.id < uint64(len(dict)) {
			name = dict[l.id]
		}
		fmt.Fprintf(w, "  %s\t%d\n", name, l.len)
	}
	w.Flush()
}
