package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"text/tabwriter"

	rhttp "github.com/fyrsmithlabs/ragserve/internal/http"
	"github.com/spf13/cobra"
)

func newQueryCmd(c *client) *cobra.Command {
	var (
		tags       []string
		numItems   int
		keepDupes  bool
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Query documents by tag",
		Long: `Embed the query text and return the nearest documents from the given tags.

Examples:
  # Top 5 films and books
  ragctl query "space opera" --tag films --tag books -n 5

  # Keep a document once per matching tag
  ragctl query "space opera" --tag films --tag books --keep-duplicates`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dedupe := !keepDupes
			req := rhttp.QueryRequest{
				Query:            args[0],
				Tags:             tags,
				NumItems:         numItems,
				RemoveDuplicates: &dedupe,
			}
			var resp rhttp.QueryResponse
			if err := c.do(cmd.Context(), "POST", "/v1/query", req, &resp); err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			return writeHits(cmd.OutOrStdout(), resp.Items)
		},
	}
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "tag to search (repeatable)")
	cmd.Flags().IntVarP(&numItems, "num-items", "n", 10, "maximum number of results")
	cmd.Flags().BoolVar(&keepDupes, "keep-duplicates", false, "return a document once per matching tag")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the raw JSON response")
	_ = cmd.MarkFlagRequired("tag")
	return cmd
}

func newAddCmd(c *client) *cobra.Command {
	var (
		file    string
		id      string
		content string
		tags    []string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or replace documents",
		Long: `Add documents from a JSON file, or a single document from flags.

The file holds either {"documents": [...]} or a bare array of
{"item_id", "content", "tags"} objects. Use "-" to read stdin.

Examples:
  # One document
  ragctl add --id 42 --content "Dune" --tag books --tag films

  # A batch
  ragctl add -f docs.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var docs []rhttp.Document
			switch {
			case file != "" && (id != "" || content != "" || len(tags) > 0):
				return fmt.Errorf("--file cannot be combined with --id, --content or --tag")
			case file != "":
				var err error
				if docs, err = readDocuments(cmd.InOrStdin(), file); err != nil {
					return err
				}
			case id != "":
				docs = []rhttp.Document{{ItemID: id, Content: content, Tags: tags}}
			default:
				return fmt.Errorf("either --file or --id is required")
			}

			if err := c.do(cmd.Context(), "PUT", "/v1/", rhttp.AddDocumentsRequest{Documents: docs}, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %d document(s)\n", len(docs))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file of documents, or - for stdin")
	cmd.Flags().StringVar(&id, "id", "", "document id")
	cmd.Flags().StringVar(&content, "content", "", "document content")
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "document tag (repeatable)")
	return cmd
}

func newRemoveCmd(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <item-id>",
		Short: "Remove a document from every tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.do(cmd.Context(), "DELETE", "/v1/items/"+url.PathEscape(args[0]), nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
			return nil
		},
	}
}

func newHealthCmd(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check ragserve server health",
		Long: `Check the health status of the ragserve HTTP server.

Examples:
  # Check health
  ragctl health

  # Check health on a different server
  ragctl health --server http://localhost:9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp rhttp.HealthResponse
			if err := c.do(cmd.Context(), "GET", "/health", nil, &resp); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Server Status: %s\n", resp.Status)
			fmt.Fprintf(out, "Server URL:    %s\n", c.baseURL)
			fmt.Fprintf(out, "Version:       %s\n", resp.Version)
			fmt.Fprintf(out, "Index:         %s (%s, %d dims)\n", resp.Index.Backend, resp.Index.Metric, resp.Index.Dimension)
			fmt.Fprintf(out, "Partitions:    %d\n", resp.Index.Partitions)
			fmt.Fprintf(out, "Vectors:       %d\n", resp.Index.Vectors)
			fmt.Fprintf(out, "Stored items:  %d\n", resp.StoredItems)
			return nil
		},
	}
}

// readDocuments decodes either an AddDocumentsRequest or a bare array.
func readDocuments(stdin io.Reader, path string) ([]rhttp.Document, error) {
	var raw []byte
	var err error
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}

	var docs []rhttp.Document
	if err := json.Unmarshal(raw, &docs); err == nil {
		return docs, nil
	}
	var req rhttp.AddDocumentsRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("failed to parse documents from %s: %w", path, err)
	}
	return req.Documents, nil
}

func writeHits(w io.Writer, hits []rhttp.ScoredDocument) error {
	if len(hits) == 0 {
		_, err := fmt.Fprintln(w, "No results")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tITEM\tTAGS\tCONTENT")
	for _, h := range hits {
		fmt.Fprintf(tw, "%.4f\t%s\t%v\t%s\n", h.Score, h.ItemID, h.Tags, truncate(h.Content, 60))
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
