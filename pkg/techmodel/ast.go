package techmodel

// RulesFile is the root of an RC model file
type RulesFile struct {
	Name    string    `"model" @String`
	Units   string    `( "units" @("micron" | "nm") )?`
	Corners []*Corner `@@+`
	Metals  []*Metal  `@@*`
}

// Corner declares a process corner
type Corner struct {
	Name string `"corner" @Ident`
}

// Metal groups the tables of one routing level
type Metal struct {
	Level   int      `"metal" @Number`
	Name    string   `@String? "{"`
	Entries []*Entry `@@* "}"`
}

// Entry is one table row: a curve over distance for a fixed width, or a
// single value for open fringe and via rows.
//
//	coupling typ width 0.1 dist 0.1 0.2 values 0.08 0.04
//	fringe typ neighbor 1 width 0.1 dist 0 0.2 values 0.05 0.02
//	open typ width 0.1 values 0.02
//	via typ values 4.5
type Entry struct {
	Kind     string    `@("coupling" | "fringe" | "resistance" | "open" | "via")`
	Corner   string    `@Ident`
	Neighbor *int      `( "neighbor" @Number )?`
	Width    *float64  `( "width" @Number )?`
	Dist     []float64 `( "dist" @Number+ )?`
	Values   []float64 `"values" @Number+`
}
