package cli

import (
	"fmt"

	"github.com/ppiankov/newsdesk/internal/privacy"
	"github.com/ppiankov/newsdesk/internal/source"
	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List configured sources",
	Args:  cobra.NoArgs,
	RunE:  sourcesAction,
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}

func sourcesAction(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reg, err := cfg.Registry()
	if err != nil {
		return fmt.Errorf("sources: %w", err)
	}

	all := reg.All()
	maxKey := 3
	for _, s := range all {
		if len(s.Key) > maxKey {
			maxKey = len(s.Key)
		}
	}

	for _, s := range all {
		mark := " "
		if s.Key == source.DefaultKey {
			mark = "*"
		}
		fmt.Printf("%s %-*s  %s  %s\n", mark, maxKey, s.Key, s.Title, privacy.RedactURL(s.URL))
	}
	return nil
}
