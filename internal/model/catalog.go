package model

import (
	"strconv"
	"strings"
)

// DataModel is a target schema/domain a raw file is validated and mapped against.
type DataModel struct {
	ID     int    `json:"id" mapstructure:"id"`
	Code   string `json:"code" mapstructure:"code"`
	Label  string `json:"label" mapstructure:"label"`
	Format string `json:"format" mapstructure:"format"`
}

// Category returns the numeric-string identifier sent to the backend.
func (m DataModel) Category() string {
	return strconv.Itoa(m.ID)
}

// Catalog is the closed set of data models offered for ingestion.
type Catalog []DataModel

// DefaultCatalog mirrors the categories seeded in the portal backend.
var DefaultCatalog = Catalog{
	{ID: 1, Code: "SANTE_V2", Label: "Public health (morbidity/mortality)", Format: "WHO standard"},
	{ID: 2, Code: "ECO_IPC", Label: "Economy (consumer price index)", Format: "IMF/CEMAC"},
	{ID: 3, Code: "DEMO_RGPH", Label: "Demography (census)", Format: "National"},
	{ID: 4, Code: "AGRI_V1", Label: "Agriculture & livestock", Format: "FAO"},
}

// Lookup resolves a reference given either as the numeric id or as the code.
func (c Catalog) Lookup(ref string) (DataModel, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return DataModel{}, false
	}
	if id, err := strconv.Atoi(ref); err == nil {
		for _, m := range c {
			if m.ID == id {
				return m, true
			}
		}
		return DataModel{}, false
	}
	for _, m := range c {
		if strings.EqualFold(m.Code, ref) {
			return m, true
		}
	}
	return DataModel{}, false
}
