package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/open-source-firmware/go-qemu-smbios/pkg/detect"
	"github.com/open-source-firmware/go-qemu-smbios/pkg/pcd"
	"github.com/open-source-firmware/go-qemu-smbios/pkg/smbios"
)

type PCDValue struct {
	Token pcd.Token
	Value interface{}
}

// Report is what detect prints.
type Report struct {
	Source      string
	Layout      string
	Version     string
	DocRev      *uint8 `json:",omitempty"`
	AnchorSize  int
	TablesSize  int
	TableSize   uint32
	Fingerprint string
	PCDs        []PCDValue
}

func newReport(source string, r *detect.Result, store *pcd.MemoryStore) *Report {
	rep := &Report{
		Source:      source,
		Layout:      r.Anchor.Layout().String(),
		Version:     r.Version.String(),
		AnchorSize:  r.AnchorSize,
		TablesSize:  r.TablesSize,
		TableSize:   r.Anchor.TableSize(),
		Fingerprint: hex.EncodeToString(r.Fingerprint),
	}
	if r.HasDocRev {
		d := r.DocRev
		rep.DocRev = &d
	}
	for _, tok := range store.Written() {
		var v interface{}
		switch pcd.Declarations[tok] {
		case pcd.Width16:
			v, _ = store.Get16(tok)
		case pcd.Width8:
			v, _ = store.Get8(tok)
		default:
			v, _ = store.GetBool(tok)
		}
		rep.PCDs = append(rep.PCDs, PCDValue{Token: tok, Value: v})
	}
	return rep
}

func outputJSON(w io.Writer, rep *Report) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %v", err)
	}
	_, err = w.Write(append(b, '\n'))
	return err
}

func formatPCD(v interface{}) string {
	switch v := v.(type) {
	case uint16:
		return fmt.Sprintf("0x%04x (%s)", v, smbios.VersionFromCombined(v))
	case uint8:
		return fmt.Sprintf("%d", v)
	}
	return fmt.Sprint(v)
}

func outputTable(out io.Writer, rep *Report, header bool) error {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	if header {
		fmt.Fprintf(w, "SOURCE\tLAYOUT\tVERSION\tDOCREV\tANCHOR\tTABLES\tFINGERPRINT\n")
	}
	docRev := "-"
	if rep.DocRev != nil {
		docRev = fmt.Sprint(*rep.DocRev)
	}
	fp := rep.Fingerprint
	if len(fp) > 16 {
		fp = fp[:16]
	}
	fmt.Fprint(w,
		rep.Source, "\t",
		rep.Layout, "\t",
		rep.Version, "\t",
		docRev, "\t",
		rep.AnchorSize, "\t",
		rep.TablesSize, "\t",
		fp, "\t",
		"\n")
	fmt.Fprintln(w)
	if header {
		fmt.Fprintf(w, "PCD\tVALUE\n")
	}
	for _, p := range rep.PCDs {
		fmt.Fprintf(w, "%s\t%s\n", p.Token, formatPCD(p.Value))
	}
	return w.Flush()
}
