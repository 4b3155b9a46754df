package gencomo

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// ExportConfig configures the exporting of a trajectory.
type ExportConfig struct {
	Filename  string // Without extension; empty disables the export.
	Gating    bool   // Also export m, h and n.
	Timestamp bool   // Append the creation time to the file name.
}

// IsUseless returns whether this config doesn't actually do anything.
func (c ExportConfig) IsUseless() bool {
	return c.Filename == ""
}

// Path returns the path of the CSV file in the given directory.
func (c ExportConfig) Path(dir string, now time.Time) string {
	name := c.Filename
	if c.Timestamp {
		t := now.UTC()
		name = fmt.Sprintf("%s-%d-%02d-%02dT%02d.%02d.%02d", name, t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second())
	}
	return filepath.Join(dir, name+".csv")
}

// Export writes the trajectory to a CSV file in dir and returns its path.
func (c ExportConfig) Export(dir string, traj *Trajectory) (string, error) {
	if c.IsUseless() {
		return "", nil
	}
	path := c.Path(dir, time.Now())
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := WriteCSV(f, traj, c); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}

// WriteCSV writes one record per sample: the time followed by the potential of each compartment in
// index order, and its gating variables if conf.Gating is set. Header lines start with `#`.
func WriteCSV(w io.Writer, traj *Trajectory, conf ExportConfig) error {
	if traj == nil || traj.graph == nil {
		return fmt.Errorf("gencomo: nothing to export")
	}
	ids := traj.graph.IDs()
	gates := ""
	if conf.Gating {
		gates = " <m> <h> <n>"
	}
	if _, err := fmt.Fprintf(w, `# Creation date (UTC): %s
# Records are <time> then, per compartment, <V>%s
#   Time in ms
#   Potential in mV
`, time.Now().UTC().Format(time.RFC3339), gates); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	hdr := []string{"time"}
	for _, id := range ids {
		hdr = append(hdr, id+"_V")
		if conf.Gating {
			hdr = append(hdr, id+"_m", id+"_h", id+"_n")
		}
	}
	if err := cw.Write(hdr); err != nil {
		return err
	}
	record := make([]string, len(hdr))
	for k, t := range traj.Times {
		s := traj.States[k]
		record[0] = strconv.FormatFloat(t, 'f', -1, 64)
		col := 1
		for i := range ids {
			base := StateWidth * i
			record[col] = strconv.FormatFloat(s[base+OffsetV], 'f', 6, 64)
			col++
			if conf.Gating {
				for _, off := range []int{OffsetM, OffsetH, OffsetN} {
					record[col] = strconv.FormatFloat(s[base+off], 'f', 6, 64)
					col++
				}
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
