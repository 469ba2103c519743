package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/scholar/internal/calendar"
	"github.com/ajitpratap0/scholar/internal/warehouse"
	"github.com/ajitpratap0/scholar/pkg/config"
	"github.com/ajitpratap0/scholar/pkg/features"
)

// calendarSummary describes a generated dim_time horizon.
type calendarSummary struct {
	Start       string         `json:"start"`
	End         string         `json:"end"`
	Days        int            `json:"days"`
	WeekendDays int            `json:"weekend_days"`
	DaysPerYear map[string]int `json:"days_per_year"`
	Rows        []calendarRow  `json:"rows,omitempty"`
}

type calendarRow struct {
	DateKey   string `json:"date_key"`
	Date      string `json:"date"`
	Quarter   int    `json:"quarter"`
	DayOfWeek int    `json:"day_of_week"`
	DayName   string `json:"day_name"`
	IsWeekend bool   `json:"is_weekend"`
}

func summarizeCalendar(days []calendar.Day, withRows bool) calendarSummary {
	s := calendarSummary{Days: len(days), DaysPerYear: map[string]int{}}
	if len(days) > 0 {
		s.Start = days[0].Date.Format(time.DateOnly)
		s.End = days[len(days)-1].Date.Format(time.DateOnly)
	}
	for _, d := range days {
		if d.IsWeekend {
			s.WeekendDays++
		}
		s.DaysPerYear[d.Date.Format("2006")]++
		if withRows {
			s.Rows = append(s.Rows, calendarRow{
				DateKey:   d.DateKey,
				Date:      d.Date.Format(time.DateOnly),
				Quarter:   d.Quarter,
				DayOfWeek: d.DayOfWeek,
				DayName:   d.DayName,
				IsWeekend: d.IsWeekend,
			})
		}
	}
	return s
}

func newCalendarCmd(flags *globalFlags) *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Print the dim_time horizon the next run will generate",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			start, end, err := cfg.Calendar.Bounds()
			if err != nil {
				return err
			}
			days, err := calendar.Generate(start, end)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), summarizeCalendar(days, list))
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "Include every generated day")
	return cmd
}

func newFeaturesCmd(flags *globalFlags) *cobra.Command {
	var studentID string

	cmd := &cobra.Command{
		Use:   "features",
		Short: "Print per-student model features from the warehouse",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cfg.Warehouse.CreateDatabase = false
			db, err := warehouse.Open(ctx, cfg.Warehouse)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck

			store := features.NewStore(db)
			if studentID != "" {
				f, err := store.ForStudent(ctx, studentID)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), f)
			}
			all, err := store.All(ctx)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), all)
		},
	}
	cmd.Flags().StringVar(&studentID, "student", "", "Only print the features of this student id")
	return cmd
}

func newConfigCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			redacted := cfg.Redacted()
			return config.Write(cmd.OutOrStdout(), &redacted)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := flags.load(); err != nil {
				return err
			}
			_, err := cmd.OutOrStdout().Write([]byte("configuration is valid\n"))
			return err
		},
	})
	return cmd
}
