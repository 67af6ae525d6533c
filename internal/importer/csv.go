// Package importer reads property listings from CSV exports.
package importer

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"

	"github.com/sells-group/propstatus/internal/model"
)

// headerAliases maps accepted CSV headers onto property fields.
var headerAliases = map[string]string{
	"address":        "address",
	"property":       "address",
	"street address": "address",
	"price":          "price",
	"list price":     "price",
	"agent":          "agent",
	"company":        "company",
	"brokerage":      "company",
	"image_url":      "image_url",
	"image":          "image_url",
	"photo":          "image_url",
	"paid":           "paid",
	"status":         "status",
}

// mapRow pairs each recognised header with the row value. Short rows yield
// empty strings for the missing columns.
func mapRow(fields []string, row []string) map[string]string {
	out := make(map[string]string, len(fields))
	for i, f := range fields {
		if f == "" {
			continue
		}
		if i < len(row) {
			out[f] = strings.TrimSpace(row[i])
		} else {
			out[f] = ""
		}
	}
	return out
}

// ParseCSV reads properties for tenant. Rows without an address are
// skipped and repeated addresses (compared case-insensitively) keep the
// first occurrence.
func ParseCSV(r io.Reader, tenant string) ([]model.Property, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "importer: read csv")
	}
	if len(records) < 2 {
		return nil, nil
	}

	fields := make([]string, len(records[0]))
	hasAddress := false
	for i, h := range records[0] {
		fields[i] = headerAliases[strings.ToLower(strings.TrimSpace(h))]
		if fields[i] == "address" {
			hasAddress = true
		}
	}
	if !hasAddress {
		return nil, eris.New("importer: csv has no address column")
	}

	fold := cases.Fold()
	seen := make(map[string]struct{})
	var props []model.Property

	for n, row := range records[1:] {
		m := mapRow(fields, row)
		if m["address"] == "" {
			continue
		}
		key := fold.String(strings.Join(strings.Fields(m["address"]), " "))
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		p, err := toProperty(m, tenant)
		if err != nil {
			return nil, eris.Wrapf(err, "importer: row %d", n+2)
		}
		props = append(props, p)
	}
	return props, nil
}

func toProperty(m map[string]string, tenant string) (model.Property, error) {
	p := model.Property{
		Tenant:   tenant,
		Address:  m["address"],
		Agent:    m["agent"],
		Company:  m["company"],
		ImageURL: m["image_url"],
	}
	if s := m["status"]; s != "" {
		p.Status = model.ParseListingStatus(s)
	}
	if s := strings.NewReplacer("$", "", ",", "").Replace(m["price"]); s != "" {
		price, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return p, eris.Wrapf(err, "parse price %q", m["price"])
		}
		p.Price = price
	}
	switch strings.ToLower(m["paid"]) {
	case "true", "yes", "y", "1":
		p.Paid = true
	}
	return p, nil
}
