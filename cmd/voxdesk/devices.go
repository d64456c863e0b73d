package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/MrWong99/voxdesk/pkg/audio/portaudio"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff9f"))
	defaultStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6e7681"))
)

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio devices",
		Long: `List the audio devices PortAudio can see. Any part of a device name can
be used for audio.input_device or audio.output_device.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			devs, err := portaudio.Devices()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%-40s %-16s %3s %3s %8s", "NAME", "HOST API", "IN", "OUT", "RATE")))
			for _, d := range devs {
				line := fmt.Sprintf("%-40s %-16s %3d %3d %8.0f", d.Name, d.HostAPI, d.MaxInputChannels, d.MaxOutputChannels, d.DefaultSampleRate)
				var marks []string
				if d.DefaultInput {
					marks = append(marks, "default input")
				}
				if d.DefaultOutput {
					marks = append(marks, "default output")
				}
				if len(marks) > 0 {
					line += " " + defaultStyle.Render("("+strings.Join(marks, ", ")+")")
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}
