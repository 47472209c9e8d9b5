package output

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/devmail/webapp/pkg/api"
)

const maxBodyWidth = 48

func WriteEmailTable(w io.Writer, buckets []api.HourBucket) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "HOUR\tRECIPIENT\tSUBJECT\tBODY")
	for _, b := range buckets {
		for _, r := range b.Records {
			_, _ = fmt.Fprintf(tw, "%02d\t%s\t%s\t%s\n", b.Hour, dash(r.Recipient), dash(r.Subject), dash(truncate(flatten(r.Body), maxBodyWidth)))
		}
	}
	_ = tw.Flush()
}

// flatten collapses whitespace so multi-line HTML bodies fit on one row.
func flatten(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
