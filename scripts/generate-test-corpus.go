//go:build ignore

// Package main generates a synthetic personal-files corpus for trying
// out smartfolder by hand.
// Usage: go run scripts/generate-test-corpus.go -files 200 -output testdata/corpus
//
// The corpus mixes plain-text notes, markdown documents, "copy of"
// duplicates and badly named files, so every scan, search and organize
// feature has something to bite on.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
)

var (
	numFiles  = flag.Int("files", 200, "Number of files to generate")
	outputDir = flag.String("output", "testdata/corpus", "Output directory")
	seed      = flag.Int64("seed", 42, "Random seed for reproducibility")
)

var noteTemplate = `%s

Written on the %dth. Things to remember about the %s:
the %s needs %s before the end of the month, and the
%s people still have not sent the %s paperwork.

Follow up: call about the %s, file the %s receipt.
`

var letterTemplate = `Dear %s,

Thank you for your letter regarding the %s. We have reviewed
the %s and can confirm the %s will be handled by our %s
department within ten working days.

Please keep this reference for the %s: %04d-%04d.

Kind regards,
The %s Office
`

var listTemplate = `# %s checklist

- [ ] book the %s
- [ ] confirm the %s with %s
- [x] pay the %s deposit
- [ ] pack the %s
`

var topics = []string{
	"lease", "insurance", "holiday", "renovation", "wedding",
	"tax return", "car service", "school enrolment", "dentist",
	"garden", "pension", "electricity contract",
}

var things = []string{
	"boiler", "passport", "invoice", "contract", "quote",
	"booking", "refund", "warranty", "statement", "ticket",
}

var names = []string{
	"Ms Alvarez", "Mr Chen", "the Hendersons", "Dr Okafor",
	"the council", "the landlord", "the bank",
}

var actions = []string{
	"a signature", "a replacement", "an inspection",
	"a renewal", "a second opinion",
}

func main() {
	flag.Parse()
	rand.Seed(*seed)

	for _, sub := range []string{"notes", "documents", "lists", "inbox"} {
		if err := os.MkdirAll(filepath.Join(*outputDir, sub), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating directory: %v\n", err)
			os.Exit(1)
		}
	}

	generated := 0
	for i := 0; i < *numFiles; i++ {
		var err error
		switch i % 4 {
		case 0:
			err = generateNote(i)
		case 1:
			err = generateLetter(i)
		case 2:
			err = generateList(i)
		case 3:
			err = generateBadlyNamed(i)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error generating file %d: %v\n", i, err)
			os.Exit(1)
		}
		generated++
	}

	// A handful of byte-identical duplicates so /api/organize has
	// something to flag.
	for i := 0; i < *numFiles/20+1; i++ {
		if err := generateDuplicate(i); err != nil {
			fmt.Fprintf(os.Stderr, "Error generating duplicate %d: %v\n", i, err)
			os.Exit(1)
		}
		generated++
	}

	fmt.Printf("Generated %d files in %s.\n", generated, *outputDir)
}

func pick(pool []string) string {
	return pool[rand.Intn(len(pool))]
}

func generateNote(index int) error {
	topic := pick(topics)
	content := fmt.Sprintf(noteTemplate,
		topic, rand.Intn(28)+1, topic,
		pick(things), pick(actions),
		pick(names), pick(things),
		pick(things), pick(things))

	filename := filepath.Join(*outputDir, "notes", fmt.Sprintf("%s_%d.txt", sanitize(topic), index))
	return os.WriteFile(filename, []byte(content), 0o644)
}

func generateLetter(index int) error {
	topic := pick(topics)
	content := fmt.Sprintf(letterTemplate,
		pick(names), topic,
		pick(things), pick(things), pick(topics),
		topic, rand.Intn(10000), rand.Intn(10000),
		pick(topics))

	filename := filepath.Join(*outputDir, "documents", fmt.Sprintf("%s_letter_%d.md", sanitize(topic), index))
	return os.WriteFile(filename, []byte(content), 0o644)
}

func generateList(index int) error {
	topic := pick(topics)
	content := fmt.Sprintf(listTemplate,
		topic, pick(things), pick(things), pick(names),
		pick(things), pick(things))

	filename := filepath.Join(*outputDir, "lists", fmt.Sprintf("%s_%d.md", sanitize(topic), index))
	return os.WriteFile(filename, []byte(content), 0o644)
}

// generateBadlyNamed writes content under names the organize endpoint
// suggests renaming: untitled, copy of, IMG_-style.
func generateBadlyNamed(index int) error {
	topic := pick(topics)
	content := fmt.Sprintf("%s reminder for %s\n\nDo not forget the %s.\n",
		topic, pick(names), pick(things))

	var filename string
	switch index % 3 {
	case 0:
		filename = fmt.Sprintf("untitled%d.txt", index)
	case 1:
		filename = fmt.Sprintf("Copy of notes %d.txt", index)
	default:
		filename = fmt.Sprintf("IMG_%04d.txt", index)
	}
	return os.WriteFile(filepath.Join(*outputDir, "inbox", filename), []byte(content), 0o644)
}

func generateDuplicate(index int) error {
	content := fmt.Sprintf("shared shopping list %d\n\nmilk, eggs, flour\n", index)
	original := filepath.Join(*outputDir, "notes", fmt.Sprintf("shopping_%d.txt", index))
	copyPath := filepath.Join(*outputDir, "inbox", fmt.Sprintf("Copy of shopping_%d.txt", index))

	if err := os.WriteFile(original, []byte(content), 0o644); err != nil {
		return err
	}
	return os.WriteFile(copyPath, []byte(content), 0o644)
}

func sanitize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == ' ' {
			r = '_'
		}
		out = append(out, r)
	}
	return string(out)
}
