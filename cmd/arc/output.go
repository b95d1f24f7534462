package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"arc-go/internal/arc"

	"github.com/disiqueira/gotree/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

func outputFormat(cmd *cobra.Command) string {
	f, _ := cmd.Flags().GetString("output")
	return f
}

// emit writes v in the selected output format. text renders the plain
// form; a nil text falls back to YAML.
func emit(cmd *cobra.Command, v any, text func(w io.Writer)) error {
	return writeAs(cmd.OutOrStdout(), outputFormat(cmd), v, text)
}

func writeAs(w io.Writer, format string, v any, text func(w io.Writer)) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		return writeYAML(w, v)
	case "text", "":
		if text == nil {
			return writeYAML(w, v)
		}
		text(w)
		return nil
	default:
		return fmt.Errorf("unknown output format %q: want text, yaml or json", format)
	}
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// short abbreviates a hash for text output.
func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

// renderTree draws an archive as collections holding their documents in
// order, followed by the documents that belong to no collection.
func renderTree(archive string, cols []*arc.Collection, unsorted []string, names map[string]string) string {
	root := gotree.New(archive)
	for _, c := range cols {
		label := c.Name
		if len(c.Tags) > 0 {
			label += " [" + strings.Join(c.Tags, ", ") + "]"
		}
		node := root.Add(label)
		for _, h := range c.Documents {
			node.Add(docLabel(h, names))
		}
	}
	if len(unsorted) > 0 {
		node := root.Add("(unsorted)")
		for _, h := range unsorted {
			node.Add(docLabel(h, names))
		}
	}
	return root.Print()
}

func docLabel(hash string, names map[string]string) string {
	if name, ok := names[hash]; ok {
		return short(hash) + "  " + name
	}
	return short(hash)
}

// readPassphrase prompts on the terminal, or reads one line from stdin
// when it is not a terminal. $ARC_PASSPHRASE wins over both.
func readPassphrase(cmd *cobra.Command, prompt string) (string, error) {
	if p := os.Getenv("ARC_PASSPHRASE"); p != "" {
		return p, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && err != io.EOF {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

// readNewPassphrase asks twice on a terminal and requires both to match.
func readNewPassphrase(cmd *cobra.Command) (string, error) {
	p, err := readPassphrase(cmd, "New passphrase: ")
	if err != nil {
		return "", err
	}
	if os.Getenv("ARC_PASSPHRASE") != "" || !term.IsTerminal(int(os.Stdin.Fd())) {
		return p, nil
	}
	confirm, err := readPassphrase(cmd, "Repeat passphrase: ")
	if err != nil {
		return "", err
	}
	if p != confirm {
		return "", fmt.Errorf("passphrases do not match")
	}
	return p, nil
}
