package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/CristiGvl/ecfanctl/internal/device"
	"github.com/CristiGvl/ecfanctl/internal/fan"
	"github.com/CristiGvl/ecfanctl/internal/telemetry"
	"github.com/CristiGvl/ecfanctl/internal/view"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the current fan, curve and telemetry state once.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		store, err := openStore(cfg, logger)
		if err != nil {
			return err
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		report, err := readStatus(ctx, store, cfg.Fans)
		if err != nil {
			logger.Warn("some attributes could not be read", "error", err)
		}
		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		return report.print(cmd.OutOrStdout())
	},
}

func init() {
	statusCmd.Flags().Bool("json", false, "print JSON instead of a table")
}

type statusReport struct {
	Fans      []fan.State        `json:"fans"`
	PowerMode fan.PowerMode      `json:"power_mode,omitempty"`
	Telemetry telemetry.Snapshot `json:"telemetry"`
}

// discard is a presenter for one-shot reads.
type discard struct{}

func (discard) Apply(func(*view.Model)) bool { return true }
func (discard) Emit(view.Event)              {}

type lastSnapshot struct{ snapshot telemetry.Snapshot }

func (l *lastSnapshot) PublishTelemetry(s telemetry.Snapshot) { l.snapshot = s }

func readStatus(ctx context.Context, store device.Store, fans []int) (statusReport, error) {
	controller := fan.NewController(store, fans, discard{}, fan.Options{})
	defer controller.Close()
	loadErr := controller.Load(ctx)

	sink := &lastSnapshot{}
	telemetry.NewPoller(store, fans, sink, telemetry.Options{}).Tick(ctx)

	return statusReport{
		Fans:      controller.States(),
		PowerMode: controller.PowerMode(),
		Telemetry: sink.snapshot,
	}, loadErr
}

func (r statusReport) print(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FAN\tMODE\tLEVEL\tRPM\tRAMP UP\tRAMP DOWN")
	for _, st := range r.Fans {
		rpm := "-"
		if v, ok := r.Telemetry.RPM[st.ID]; ok {
			rpm = fmt.Sprint(v)
		}
		up, down := "-", "-"
		if st.CurvesLoaded {
			up = device.FormatCurve(st.Curves.RampUp[:])
			down = device.FormatCurve(st.Curves.RampDown[:])
		}
		mode := string(st.Mode)
		if mode == "" {
			mode = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%s\n", st.ID, mode, st.Level, rpm, up, down)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	temp := "-"
	if r.Telemetry.Temperature != nil {
		temp = fmt.Sprintf("%d°C", *r.Telemetry.Temperature)
	}
	power := string(r.PowerMode)
	if power == "" {
		power = "-"
	}
	_, err := fmt.Fprintf(w, "\nTemperature: %s\nPower mode:  %s\n", temp, power)
	return err
}
