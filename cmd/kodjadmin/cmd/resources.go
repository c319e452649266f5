package cmd

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kodj/kodjadmin/adminapi"
)

var (
	meetupsPast bool
	listPage    int
	listSize    int
)

// withAdmin runs fn with a client whose session has been validated.
func withAdmin(fn func(cmd *cobra.Command, args []string, admin *adminapi.Client) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg, cmd.ErrOrStderr(), nil)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := requireSession(cmd, a.session); err != nil {
			return err
		}
		return fn(cmd, args, a.admin)
	}
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

var meetupsCmd = &cobra.Command{
	Use:   "meetups",
	Short: "Manage meetups",
}

var meetupsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List upcoming or past meetups",
	Args:  cobra.NoArgs,
	RunE: withAdmin(func(cmd *cobra.Command, args []string, admin *adminapi.Client) error {
		q := adminapi.MeetupQuery{Page: listPage, Size: listSize, Type: adminapi.MeetupsUpcoming}
		if meetupsPast {
			q.Type = adminapi.MeetupsPast
		}
		page, err := admin.Meetups.List(cmd.Context(), q)
		if err != nil {
			return err
		}
		tw := newTable(cmd.OutOrStdout())
		fmt.Fprintln(tw, "ID\tDATE\tTITLE\tLOCATION\tSEATS")
		for _, m := range page.Content {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d/%d\n", m.ID, m.MeetupDate, m.Title, m.Location, m.AvailableSeats, m.MaxSeats)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "page %d of %d, %d total\n", page.Number+1, max(page.TotalPages, 1), page.TotalElements)
		return nil
	}),
}

var meetupsShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show a meetup with its speakers, notes and keynotes",
	Args:  cobra.ExactArgs(1),
	RunE: withAdmin(func(cmd *cobra.Command, args []string, admin *adminapi.Client) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		d, err := admin.Meetups.Details(cmd.Context(), id)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		m := d.Meetup
		fmt.Fprintf(out, "%s\n%s %s-%s at %s\n\n%s\n", m.Title, m.MeetupDate, m.StartTime, m.EndTime, m.Location, m.Description)
		if len(d.Speakers) > 0 {
			fmt.Fprintln(out, "\nSpeakers:")
			for _, s := range d.Speakers {
				fmt.Fprintf(out, "  %d  %s %s, %s (%s)\n", s.ID, s.FirstName, s.LastName, s.Topic, s.Organization)
			}
		}
		if len(d.Keynotes) > 0 {
			fmt.Fprintln(out, "\nKeynotes:")
			for _, k := range d.Keynotes {
				fmt.Fprintf(out, "  %d  %s-%s  %s\n", k.ID, k.StartTime, k.EndTime, k.Subject)
			}
		}
		if len(d.Notes) > 0 {
			fmt.Fprintln(out, "\nNotes:")
			for _, n := range d.Notes {
				fmt.Fprintf(out, "  %d  [%s] %s\n", n.ID, n.Status, n.Title)
			}
		}
		return nil
	}),
}

var meetupsDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a meetup",
	Args:  cobra.ExactArgs(1),
	RunE: withAdmin(func(cmd *cobra.Command, args []string, admin *adminapi.Client) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		if err := admin.Meetups.Delete(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted meetup %d\n", id)
		return nil
	}),
}

var newsCmd = &cobra.Command{
	Use:   "news",
	Short: "Manage news articles",
}

var newsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List news articles",
	Args:  cobra.NoArgs,
	RunE: withAdmin(func(cmd *cobra.Command, args []string, admin *adminapi.Client) error {
		items, err := admin.News.List(cmd.Context(), adminapi.ListQuery{Page: listPage, Limit: listSize})
		if err != nil {
			return err
		}
		tw := newTable(cmd.OutOrStdout())
		fmt.Fprintln(tw, "ID\tCREATED\tTYPE\tTITLE")
		for _, n := range items {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", n.ID, n.CreatedAt, n.Type, n.Title)
		}
		return tw.Flush()
	}),
}

var newsDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a news article",
	Args:  cobra.ExactArgs(1),
	RunE: withAdmin(func(cmd *cobra.Command, args []string, admin *adminapi.Client) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		if err := admin.News.Delete(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted news article %d\n", id)
		return nil
	}),
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage job posts",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List job posts",
	Args:  cobra.NoArgs,
	RunE: withAdmin(func(cmd *cobra.Command, args []string, admin *adminapi.Client) error {
		page, err := admin.Jobs.List(cmd.Context(), adminapi.ListQuery{Page: listPage, Limit: listSize})
		if err != nil {
			return err
		}
		tw := newTable(cmd.OutOrStdout())
		fmt.Fprintln(tw, "ID\tSTATUS\tCOMPANY\tTITLE\tTYPE")
		for _, j := range page.Content {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", j.ID, j.JobOfferStatus, j.CompanyName, j.Title, j.JobType)
		}
		return tw.Flush()
	}),
}

var jobsDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a job post",
	Args:  cobra.ExactArgs(1),
	RunE: withAdmin(func(cmd *cobra.Command, args []string, admin *adminapi.Client) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		if err := admin.Jobs.Delete(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted job post %d\n", id)
		return nil
	}),
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show platform totals",
	Args:  cobra.NoArgs,
	RunE: withAdmin(func(cmd *cobra.Command, args []string, admin *adminapi.Client) error {
		s, err := admin.Statistics.Get(cmd.Context())
		if err != nil {
			return err
		}
		tw := newTable(cmd.OutOrStdout())
		fmt.Fprintf(tw, "Users\t%d\n", s.TotalUsers)
		fmt.Fprintf(tw, "Speakers\t%d\n", s.TotalSpeakers)
		fmt.Fprintf(tw, "Events\t%d\n", s.TotalEvents)
		return tw.Flush()
	}),
}

func init() {
	for _, c := range []*cobra.Command{meetupsListCmd, newsListCmd, jobsListCmd} {
		c.Flags().IntVar(&listPage, "page", 0, "Page number")
		c.Flags().IntVar(&listSize, "size", 0, "Page size (backend default when 0)")
	}
	meetupsListCmd.Flags().BoolVar(&meetupsPast, "past", false, "List past meetups instead of upcoming ones")

	meetupsCmd.AddCommand(meetupsListCmd, meetupsShowCmd, meetupsDeleteCmd)
	newsCmd.AddCommand(newsListCmd, newsDeleteCmd)
	jobsCmd.AddCommand(jobsListCmd, jobsDeleteCmd)
	rootCmd.AddCommand(meetupsCmd, newsCmd, jobsCmd, statsCmd)
}
