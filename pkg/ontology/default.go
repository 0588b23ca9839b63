package ontology

// Default returns the built-in ontology for technical and feasibility
// documents. Deployments may extend it with an override file, see Load.
func Default() *Ontology {
	return &Ontology{
		SchemaVersion: "0.2.0",
		NodeTypes: map[string][]string{
			"Equipment": {
				"name", "short_description", "model", "model_brand", "supplier",
				"capacity", "power_rating", "weight", "width", "height",
				"installation_year", "life_expectancy_years", "annual_op_cost",
				"cost", "currency", "requires_utilities",
			},
			"Material": {
				"name", "short_description", "form", "quantity", "unit",
				"hazard_class", "packaging_type", "source", "cost", "currency",
			},
			"Process": {
				"name", "short_description", "capacity_value", "capacity_unit",
				"throughput", "batch_size", "labor_required", "cost", "currency",
			},
			"Project": {
				"name", "short_description", "location", "system_capacity",
				"availability_target", "cost", "currency",
			},
			"Scenario": {
				"name", "short_description", "sensitivity_factor",
				"regulatory_zone", "cost", "currency",
			},
			"Document": {
				"name", "short_description", "source_doc",
			},
		},
		EdgeTypes: map[string]EdgeRule{
			"FEEDS":             {Source: []string{"Equipment", "Process"}},
			"USES_EQUIPMENT":    {Target: []string{"Equipment"}},
			"HAS_EQUIPMENT":     {Target: []string{"Equipment"}},
			"CONSUMES_MATERIAL": {Target: []string{"Material"}},
			"PRODUCES_MATERIAL": {Target: []string{"Material"}},
			"INCLUDES_PROCESS":  {Target: []string{"Process"}},
			"HAS_SCENARIO":      {Target: []string{"Scenario"}},
			"LOCATED_IN":        {},
			"PART_OF":           {},
			"POWERED_BY":        {},
			"PRECEDES":          {},
			"REQUIRES":          {},
			"RELATES_TO":        {},
		},
		Vocabulary: map[string]string{
			"jaw crusher":      "Equipment",
			"cone crusher":     "Equipment",
			"gyratory crusher": "Equipment",
			"ball mill":        "Equipment",
			"sag mill":         "Equipment",
			"rod mill":         "Equipment",
			"screening plant":  "Equipment",
			"conveyor":         "Equipment",
			"feeder":           "Equipment",
			"pump":             "Equipment",
			"tank":             "Equipment",
			"thickener":        "Equipment",
			"flotation cell":   "Equipment",
			"gold ore":         "Material",
			"iron ore":         "Material",
			"copper ore":       "Material",
			"ore":              "Material",
			"concentrate":      "Material",
			"tailings":         "Material",
			"crushed rock":     "Material",
			"crushing":         "Process",
			"grinding":         "Process",
			"screening":        "Process",
			"flotation":        "Process",
			"leaching":         "Process",
			"dewatering":       "Process",
		},
	}
}
