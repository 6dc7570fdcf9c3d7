// Package export turns processed datasets into flat record streams for
// plotting and downstream tooling.
package export

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/meteokit/era5proc/internal/era5"
)

// CSV writes one record per (time, latitude, longitude) grid point: a header
// row of valid_time,latitude,longitude followed by one column per data
// variable, in dataset order.
func CSV(w io.Writer, ds *era5.Dataset) error {
	names := ds.VarNames()

	bw := bufio.NewWriter(w)
	header := append([]string{era5.DimTime, era5.DimLat, era5.DimLon}, names...)
	if _, err := bw.WriteString(strings.Join(header, ",") + "\n"); err != nil {
		return err
	}

	var sb strings.Builder
	for ti, ts := range ds.Times {
		for lai, la := range ds.Lat {
			for loi, lo := range ds.Lon {
				sb.Reset()
				sb.WriteString(fmt.Sprintf("%s,%.2f,%.2f", ts.UTC().Format(time.RFC3339), la, lo))
				for _, name := range names {
					v, _ := ds.Var(name)
					sb.WriteString(fmt.Sprintf(",%g", cellValue(v, ti, lai, loi)))
				}
				sb.WriteString("\n")
				if _, err := bw.WriteString(sb.String()); err != nil {
					return err
				}
			}
		}
	}
	return bw.Flush()
}

func cellValue(v *era5.Variable, ti, lai, loi int) float64 {
	if len(v.Dims) == 2 {
		return v.Data.Get(lai, loi)
	}
	return v.Data.Get(ti, lai, loi)
}
