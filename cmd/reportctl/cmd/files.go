package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/finreports/reportd/pkg/client"
)

var downloadOutput string

var filesCmd = &cobra.Command{
	Use:   "files <job-id>",
	Short: "List output files for a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runFilesList,
}

var downloadCmd = &cobra.Command{
	Use:   "download <job-id> <filename>",
	Short: "Download an output file",
	Long:  `Download one output file of a completed job. By default the file is written to the current directory under its original name.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runDownload,
}

func init() {
	rootCmd.AddCommand(filesCmd)
	rootCmd.AddCommand(downloadCmd)

	downloadCmd.Flags().StringVarP(&downloadOutput, "out", "O", "", "path to write the file to (defaults to the original filename)")
}

func runFilesList(cmd *cobra.Command, args []string) error {
	c := client.NewClient(GetServerURL())
	files, err := c.JobFiles(context.Background(), args[0])
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		output, err := json.MarshalIndent(files, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(output))
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Filename", "Size", "Content Type", "Created")
	for _, f := range files {
		table.Append(f.Filename, fmt.Sprintf("%d", f.Size), f.ContentType,
			f.CreatedAt.Format(time.RFC3339))
	}
	table.Render()
	fmt.Printf("\nTotal: %d files\n", len(files))
	return nil
}

func runDownload(cmd *cobra.Command, args []string) error {
	jobID, filename := args[0], args[1]

	c := client.NewClient(GetServerURL())
	data, err := c.Download(context.Background(), jobID, filename)
	if err != nil {
		return err
	}

	dest := downloadOutput
	if dest == "" {
		dest = filename
	}
	if err := os.WriteFile(dest, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}

	fmt.Printf("Downloaded %s (%d bytes) to %s\n", filename, len(data), dest)
	return nil
}
