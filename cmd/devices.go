package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-isatty"
	"github.com/smazurov/qrgrabber/internal/api"
	"github.com/smazurov/qrgrabber/internal/platform"
	"github.com/spf13/cobra"
)

// CreateDevicesCmd creates the devices command.
func CreateDevicesCmd() *cobra.Command {
	var opts captureOptions
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List capture devices and their formats",
		Long:  `Enumerates source groups of the capture backend with every source and frame format they offer.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.load(cmd); err != nil {
				return err
			}
			backend, err := opts.openBackend()
			if err != nil {
				return err
			}
			defer backend.Close()

			if asJSON {
				data, err := api.GetDevicesData(cmd.Context(), backend, backend.Name())
				if err != nil {
					return fmt.Errorf("enumerate devices: %w", err)
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(data)
			}

			groups, err := backend.FindSourceGroups(cmd.Context())
			if err != nil {
				return fmt.Errorf("enumerate devices: %w", err)
			}
			out := cmd.OutOrStdout()
			return printGroups(out, groups, isTerminal(out))
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

var (
	headerCellStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")).Padding(0, 1)
	deviceCellStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Padding(0, 1)
	cellStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Padding(0, 1)
	borderStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	plainCellStyle  = lipgloss.NewStyle().Padding(0, 1)
)

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

func printGroups(w io.Writer, groups []platform.SourceGroup, styled bool) error {
	if len(groups) == 0 {
		_, err := fmt.Fprintln(w, "no capture devices found")
		return err
	}

	t := table.New().
		Headers("DEVICE", "SOURCE", "KIND", "FORMATS").
		Border(lipgloss.NormalBorder())
	if styled {
		t = t.BorderStyle(borderStyle).StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerCellStyle
			case col == 0:
				return deviceCellStyle
			default:
				return cellStyle
			}
		})
	} else {
		t = t.StyleFunc(func(int, int) lipgloss.Style { return plainCellStyle })
	}

	for _, group := range groups {
		name := group.DisplayName
		if name == "" {
			name = group.ID
		}
		for _, src := range group.Sources {
			t = t.Row(name, src.ID, src.Kind.String(), summarizeFormats(src.Formats))
			name = ""
		}
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

// summarizeFormats lists subtypes with their largest frame size.
func summarizeFormats(formats []platform.Format) string {
	if len(formats) == 0 {
		return "-"
	}
	type best struct{ w, h uint32 }
	var order []string
	largest := make(map[string]best)
	for _, f := range formats {
		b, seen := largest[f.Subtype]
		if !seen {
			order = append(order, f.Subtype)
		}
		if f.Width*f.Height > b.w*b.h {
			largest[f.Subtype] = best{f.Width, f.Height}
		}
	}
	out := ""
	for i, subtype := range order {
		if i > 0 {
			out += ", "
		}
		b := largest[subtype]
		out += fmt.Sprintf("%s up to %dx%d", subtype, b.w, b.h)
	}
	return out
}
