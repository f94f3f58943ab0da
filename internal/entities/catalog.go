package entities

// Districts is the list of districts offered for selection
var Districts = []string{
	"Chennai", "Coimbatore", "Madurai", "Salem", "Trichy",
	"Tirunelveli", "Erode", "Vellore", "Thoothukudi", "Nagercoil",
}

// SourcesByDistrict is the catalog of known water sources per district.
// Catalog entries without seed readings resolve to the default record.
var SourcesByDistrict = map[string][]string{
	"Salem":      {"Mettur Dam", "Yercaud Lake", "Thirumanimutharu River"},
	"Chennai":    {"Red Hills Lake", "Chembarambakkam Lake", "Poondi Reservoir"},
	"Coimbatore": {"Siruvani Dam", "Pillur Dam", "Aliyar Dam"},
	"Madurai":    {"Vaigai Dam", "Periyar River"},
	"Erode":      {"Bhavanisagar Dam", "Cauvery River"},
}

// Initial selection when a session starts
const (
	InitialDistrict = "Salem"
	InitialSource   = "Mettur Dam"
)

// SeedSources returns the records every new session starts with.
// lastUpdated is the display stamp for the moment the session was created.
func SeedSources(lastUpdated string) []WaterSource {
	return []WaterSource{
		{
			ID:          SourceIDFromName("Mettur Dam"),
			Name:        "Mettur Dam",
			District:    "Salem",
			Params:      WaterParameters{PH: 7.2, Temp: 28, Turbidity: 3.5, TDS: 180},
			SourceType:  SourceTypeIOT,
			LastUpdated: lastUpdated,
			Location:    Location{Lat: 11.7853, Lng: 77.8016},
		},
		{
			ID:          SourceIDFromName("Red Hills Lake"),
			Name:        "Red Hills Lake",
			District:    "Chennai",
			Params:      WaterParameters{PH: 7.0, Temp: 29, Turbidity: 2.1, TDS: 210},
			SourceType:  SourceTypeIOT,
			LastUpdated: lastUpdated,
			Location:    Location{Lat: 13.1866, Lng: 80.1706},
		},
	}
}
