// Package schematest contains unit fixtures taken from the lab tracking
// history: flowcells, sequencers, index barcodes and library protocols.
package schematest

import "github.com/contiamo/schema-migrator/pkg/schema"

var (
	Flowcell0006     = schema.UnitID{Module: "flowcell", Name: "0006_auto_20230702_1816"}
	Shared0007       = schema.UnitID{Module: "library_sample_shared", Name: "0007_dj32_upgrade"}
	Shared0012       = schema.UnitID{Module: "library_sample_shared", Name: "0012_auto_20230929_1053"}
	Sample0007       = schema.UnitID{Module: "sample", Name: "0007_auto_20230929_1053"}
	flowcell0005     = schema.UnitID{Module: "flowcell", Name: "0005_remove_sequencer_lanes"}
	shared0006       = schema.UnitID{Module: "library_sample_shared", Name: "0006_indextypes_long"}
	shared0011       = schema.UnitID{Module: "library_sample_shared", Name: "0011_auto_20230731_1621"}
	sample0006       = schema.UnitID{Module: "sample", Name: "0006_auto_20230731_1621"}
	samplesheetField = "For samplesheet"
)

func cycles(label string) schema.Field {
	return schema.Field{Type: schema.PositiveSmallIntegerField, Default: 1, VerboseName: label}
}

func samplesheet(label string, maxLength int, def interface{}) schema.Field {
	return schema.Field{
		Type:        schema.CharField,
		MaxLength:   maxLength,
		Default:     def,
		VerboseName: label,
		HelpText:    samplesheetField,
	}
}

func bigID() schema.Field {
	return schema.Field{Type: schema.BigAutoField, PrimaryKey: true, AutoCreated: true, VerboseName: "ID"}
}

func setNull(to, label string, blank bool) schema.Field {
	return schema.Field{
		Type:        schema.ForeignKey,
		Null:        true,
		Blank:       blank,
		OnDelete:    schema.SetNull,
		To:          to,
		VerboseName: label,
	}
}

// FlowcellUnit adds the samplesheet columns to flowcells and sequencers
func FlowcellUnit() *schema.Unit {
	return schema.MustUnit(Flowcell0006, []schema.UnitID{flowcell0005},
		schema.AddField{Model: "flowcell", Name: "index1_cycles", Field: cycles("index 1 cycles")},
		schema.AddField{Model: "flowcell", Name: "index2_cycles", Field: cycles("index 2 cycles")},
		schema.AddField{
			Model: "flowcell", Name: "library_prep_kits", PreserveDefault: true,
			Field: schema.Field{Type: schema.CharField, Blank: true, MaxLength: 200, VerboseName: "library prep kits", HelpText: samplesheetField},
		},
		schema.AddField{Model: "flowcell", Name: "read1_cycles", Field: cycles("read 1 cycles")},
		schema.AddField{Model: "flowcell", Name: "read2_cycles", Field: cycles("read 2 cycles")},
		schema.AddField{Model: "flowcell", Name: "run_name", Field: samplesheet("run name", 200, "run_name")},
		schema.AddField{Model: "sequencer", Name: "bclconvert_version", Field: samplesheet("BCLconvert version", 50, "1.1.1")},
		schema.AddField{Model: "sequencer", Name: "instrument_platform", Field: samplesheet("instrument platform", 50, "NextSeq")},
		schema.AddField{Model: "sequencer", Name: "instrument_type", Field: samplesheet("instrument type", 50, "NextSeq")},
	)
}

// SharedUpgradeUnit moves the primary keys of the shared models to bigint and
// re-declares the index pair foreign keys
func SharedUpgradeUnit() *schema.Unit {
	ops := []schema.Operation{}
	for _, model := range []string{"barcodecounter", "concentrationmethod", "indexi5", "indexi7", "indexpair"} {
		ops = append(ops, schema.AlterField{Model: model, Name: "id", Field: bigID(), PreserveDefault: true})
	}
	ops = append(ops,
		schema.AlterField{Model: "indexpair", Name: "index1", Field: setNull("library_sample_shared.indexi7", "Index 1", false), PreserveDefault: true},
		schema.AlterField{Model: "indexpair", Name: "index2", Field: setNull("library_sample_shared.indexi5", "Index 2", true), PreserveDefault: true},
		schema.AlterField{Model: "indexpair", Name: "index_type", Field: setNull("library_sample_shared.indextype", "Index Type", false), PreserveDefault: true},
	)
	for _, model := range []string{"indextype", "libraryprotocol", "librarytype", "organism", "readlength"} {
		ops = append(ops, schema.AlterField{Model: model, Name: "id", Field: bigID(), PreserveDefault: true})
	}
	return schema.MustUnit(Shared0007, []schema.UnitID{shared0006}, ops...)
}

// NucleicAcidUnit creates the nucleic acid types library protocols point to
func NucleicAcidUnit() *schema.Unit {
	return schema.MustUnit(Sample0007, []schema.UnitID{sample0006},
		schema.AddField{
			Model: "nucleicacidtype", Name: "name", PreserveDefault: true,
			Field: schema.Field{Type: schema.CharField, MaxLength: 100, Unique: true, VerboseName: "name"},
		},
	)
}

// ProtocolUnit links library protocols to nucleic acid types and restricts
// the protocol type to DNA and RNA
func ProtocolUnit() *schema.Unit {
	return schema.MustUnit(Shared0012, []schema.UnitID{Sample0007, shared0011},
		schema.AddField{
			Model: "libraryprotocol", Name: "nucleic_acid_type", PreserveDefault: true,
			Field: setNull("sample.nucleicacidtype", "nucleic acid type", false),
		},
		schema.AlterField{
			Model: "libraryprotocol", Name: "type", PreserveDefault: true,
			Field: schema.Field{
				Type:        schema.CharField,
				Blank:       true,
				MaxLength:   3,
				Default:     "DNA",
				Choices:     []schema.Choice{{Value: "DNA", Label: "DNA"}, {Value: "RNA", Label: "RNA"}},
				VerboseName: "Type",
			},
		},
	)
}

// History returns all fixture units in definition order
func History() []*schema.Unit {
	return []*schema.Unit{FlowcellUnit(), SharedUpgradeUnit(), NucleicAcidUnit(), ProtocolUnit()}
}
