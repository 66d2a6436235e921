package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newGenresCommand(a *app) *cobra.Command {
	var show string

	cmd := &cobra.Command{
		Use:   "genres",
		Short: "List the genre profiles used by the theory corrector",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := a.genres()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()

			if show != "" {
				if !lib.Has(show) {
					return fmt.Errorf("unknown genre %q (available: %s)",
						show, strings.Join(lib.Names(), ", "))
				}
				data, err := yaml.Marshal(lib.Lookup(show))
				if err != nil {
					return err
				}
				_, err = w.Write(data)
				return err
			}

			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "GENRE\tSEC. DOMINANT\tDOM7\tMAJ7\tMIN7\tCADENCES\tPREDOMINANT")
			for _, name := range lib.Names() {
				g := lib.Lookup(name)
				fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.2f\t%.2f\t%s\t%s\n",
					name, g.SecondaryDominantProbability,
					g.Extensions.Dominant, g.Extensions.Major, g.Extensions.Minor,
					strings.Join(g.Cadences, ","), g.Predominant)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&show, "show", "", "print the full profile of one genre")
	return cmd
}
