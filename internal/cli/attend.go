package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/attendance/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/client"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/workflow"
)

type attendOptions struct {
	*RootOptions
	Method   string
	Status   string
	Lat      float64
	Lng      float64
	Photo    string
	NoLocate bool
	checkout bool
}

func NewCheckInCommand(rootOpts *RootOptions) *cobra.Command {
	return newAttendCommand(rootOpts, "checkin", "Record today's check-in", false)
}

func NewCheckOutCommand(rootOpts *RootOptions) *cobra.Command {
	return newAttendCommand(rootOpts, "checkout", "Record today's check-out", true)
}

func newAttendCommand(rootOpts *RootOptions, use, short string, checkout bool) *cobra.Command {
	opts := &attendOptions{RootOptions: rootOpts, checkout: checkout}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long: short + `.

The position comes from --lat/--lng or the location block of the config
file; with neither, the record is stored without a location. Biometric
attendance needs --photo pointing at a face image.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAttend(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.Method, "method", "", "biometric or manual (defaults to config)")
	f.StringVar(&opts.Status, "status", "", "present, late or absent (derived by the server when omitted)")
	f.Float64Var(&opts.Lat, "lat", 0, "latitude")
	f.Float64Var(&opts.Lng, "lng", 0, "longitude")
	f.StringVar(&opts.Photo, "photo", "", "face image for biometric attendance")
	f.BoolVar(&opts.NoLocate, "no-location", false, "submit without a location")
	cmd.MarkFlagsRequiredTogether("lat", "lng")
	return cmd
}

func (o *attendOptions) locator(cmd *cobra.Command) workflow.Locator {
	switch {
	case o.NoLocate:
		return nil
	case cmd.Flags().Changed("lat"):
		return StaticLocator{Lat: o.Lat, Lng: o.Lng}
	case o.Config.Location != nil:
		return StaticLocator{Lat: o.Config.Location.Lat, Lng: o.Config.Location.Lng}
	}
	return nil
}

func runAttend(cmd *cobra.Command, opts *attendOptions) error {
	ctx := cmd.Context()
	s, err := opts.signedIn(ctx)
	if err != nil {
		return err
	}
	method := opts.Method
	if method == "" {
		method = opts.Config.Method
	}
	remote := client.Remote{Sessions: opts.Sessions}
	engine := workflow.NewEngine(workflow.Deps{
		Records:  remote,
		Locator:  opts.locator(cmd),
		Geocoder: remote,
		Camera:   FileCamera{Path: opts.Photo},
		Uploader: remote,
	}, opts.Logger)

	rec, err := engine.Run(ctx, s.User, method, opts.checkout, opts.Status)
	if err != nil {
		opts.Logger.Debugw("attendance attempt failed", "state", engine.State(), "err", err)
		return err
	}
	return opts.printer(cmd).Print(rec, func(w io.Writer) {
		what := "checked in"
		if rec.IsCheckout {
			what = "checked out"
		}
		fmt.Fprintf(w, "%s at %s (%s)\n", what, rec.Timestamp.Local().Format("15:04"), rec.Status)
		if rec.Location != nil && rec.Location.Name != nil {
			fmt.Fprintf(w, "  at %s\n", *rec.Location.Name)
		}
	})
}

func NewTodayCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "today",
		Short: "Show today's check-in and check-out",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			st, err := opts.Sessions.API().Today(cmd.Context(), s.Token, s.User.ID)
			if err != nil {
				return opts.Sessions.Check(err)
			}
			return opts.printer(cmd).Print(st, func(w io.Writer) {
				fmt.Fprintf(w, "%s\n", st.Date)
				fmt.Fprintf(w, "  check-in:  %s\n", describe(st.CheckIn))
				fmt.Fprintf(w, "  check-out: %s\n", describe(st.CheckOut))
			})
		},
	}
}

func describe(r *entity.RecordView) string {
	if r == nil {
		return "-"
	}
	return fmt.Sprintf("%s %s via %s", r.Timestamp.Local().Format(time.Kitchen), r.Status, r.Method)
}

type historyOptions struct {
	*RootOptions
	UserID string
	From   string
	To     string
	Limit  int
	Offset int
}

func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &historyOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List attendance records, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			rows, err := opts.Sessions.API().History(cmd.Context(), s.Token, entity.Filter{
				UserID: opts.UserID, FromDay: opts.From, ToDay: opts.To, Limit: opts.Limit, Offset: opts.Offset,
			})
			if err != nil {
				return opts.Sessions.Check(err)
			}
			return opts.printer(cmd).Print(rows, func(w io.Writer) {
				if len(rows) == 0 {
					fmt.Fprintln(w, "no records")
					return
				}
				for i := range rows {
					kind := "in "
					if rows[i].IsCheckout {
						kind = "out"
					}
					fmt.Fprintf(w, "%s  %s  %s  %-7s %s\n", rows[i].Day, kind, rows[i].Timestamp.Local().Format("15:04"), rows[i].Status, rows[i].UserName)
				}
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.UserID, "user", "", "user id (admins only)")
	f.StringVar(&opts.From, "from", "", "first day, YYYY-MM-DD")
	f.StringVar(&opts.To, "to", "", "last day, YYYY-MM-DD")
	f.IntVar(&opts.Limit, "limit", 50, "maximum records")
	f.IntVar(&opts.Offset, "offset", 0, "records to skip")
	return cmd
}
