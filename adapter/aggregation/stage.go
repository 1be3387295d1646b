package aggregation

import (
	"github.com/sboesebeck/morphium-sub001/adapter/expression"
	"github.com/sboesebeck/morphium-sub001/adapter/matcher"
	"github.com/sboesebeck/morphium-sub001/adapter/projector"
	"github.com/sboesebeck/morphium-sub001/domain"
)

// StageKind tells the stages of a pipeline apart.
type StageKind uint8

// Supported stages.
const (
	StageMatch StageKind = iota + 1
	StageProject
	StageGroup
	StageSort
	StageLimit
	StageSkip
	StageCount
	StageUnwind
	StageAddFields
	StageUnset
	StageReplaceRoot
	StageLookup
	StageSortByCount
)

var stageNames = map[StageKind]string{
	StageMatch:       "$match",
	StageProject:     "$project",
	StageGroup:       "$group",
	StageSort:        "$sort",
	StageLimit:       "$limit",
	StageSkip:        "$skip",
	StageCount:       "$count",
	StageUnwind:      "$unwind",
	StageAddFields:   "$addFields",
	StageUnset:       "$unset",
	StageReplaceRoot: "$replaceRoot",
	StageLookup:      "$lookup",
	StageSortByCount: "$sortByCount",
}

// String returns the wire name of the stage.
func (k StageKind) String() string {
	if n, ok := stageNames[k]; ok {
		return n
	}
	return "$unknown"
}

// GroupField is one accumulated output field of a $group stage.
type GroupField struct {
	Field       string
	Accumulator expression.AccumulatorSpec
}

// UnwindOptions configures an $unwind stage. Path is a field path without
// the leading "$".
type UnwindOptions struct {
	Path                       string
	PreserveNullAndEmptyArrays bool
	IncludeArrayIndex          string
}

// LookupOptions configures a $lookup stage.
type LookupOptions struct {
	From         string
	LocalField   string
	ForeignField string
	As           string
}

// Stage is one step of a [Pipeline]. Only the fields relevant to its kind
// are set. Stages are immutable.
type Stage struct {
	kind StageKind

	filter     matcher.Filter
	projection projector.Projection

	id     expression.Expr
	fields []GroupField

	sort domain.Sort
	n    int64

	// output field of $count.
	field string

	unwind UnwindOptions
	set    []expression.ObjectField
	unset  []string
	expr   expression.Expr
	lookup LookupOptions
}

// Kind returns the kind of the stage.
func (s Stage) Kind() StageKind { return s.kind }

// Match filters the stream through f.
func Match(f matcher.Filter) Stage { return Stage{kind: StageMatch, filter: f} }

// Project reshapes every document through p.
func Project(p projector.Projection) Stage { return Stage{kind: StageProject, projection: p} }

// Group partitions the stream by id and folds fields over each partition.
// A null literal id groups the whole stream.
func Group(id expression.Expr, fields ...GroupField) Stage {
	return Stage{kind: StageGroup, id: id, fields: fields}
}

// Sort sorts the stream stably by s.
func Sort(s domain.Sort) Stage { return Stage{kind: StageSort, sort: s} }

// Limit keeps the first n documents.
func Limit(n int64) Stage { return Stage{kind: StageLimit, n: n} }

// Skip drops the first n documents.
func Skip(n int64) Stage { return Stage{kind: StageSkip, n: n} }

// Count replaces the stream with a single {field: count} document and ends
// the pipeline.
func Count(field string) Stage { return Stage{kind: StageCount, field: field} }

// Unwind emits one document per element of the array at path.
func Unwind(path string) Stage { return UnwindWith(UnwindOptions{Path: path}) }

// UnwindWith is [Unwind] with every option.
func UnwindWith(o UnwindOptions) Stage { return Stage{kind: StageUnwind, unwind: o} }

// AddFields sets computed fields, keeping the others.
func AddFields(fields ...expression.ObjectField) Stage {
	return Stage{kind: StageAddFields, set: fields}
}

// Unset removes fields.
func Unset(fields ...string) Stage { return Stage{kind: StageUnset, unset: fields} }

// ReplaceRoot replaces every document with the document e evaluates to.
func ReplaceRoot(e expression.Expr) Stage { return Stage{kind: StageReplaceRoot, expr: e} }

// Lookup joins the documents of another collection into an array field.
func Lookup(o LookupOptions) Stage { return Stage{kind: StageLookup, lookup: o} }

// SortByCount groups by e and sorts the groups by descending size.
func SortByCount(e expression.Expr) Stage { return Stage{kind: StageSortByCount, expr: e} }

// Document returns the wire form of the stage.
func (s Stage) Document() *domain.Document {
	var spec domain.Value
	switch s.kind {
	case StageMatch:
		spec = domain.Doc(s.filter.Document())
	case StageProject:
		spec = domain.Doc(s.projection.Document())
	case StageGroup:
		d := domain.NewDocument(domain.Field{Key: "_id", Value: s.id.Serialize()})
		for _, f := range s.fields {
			d.Set(f.Field, f.Accumulator.Serialize())
		}
		spec = domain.Doc(d)
	case StageSort:
		spec = domain.Doc(s.sort.Document())
	case StageLimit, StageSkip:
		spec = domain.Int64(s.n)
	case StageCount:
		spec = domain.String(s.field)
	case StageUnwind:
		spec = domain.String("$" + s.unwind.Path)
		if s.unwind.PreserveNullAndEmptyArrays || s.unwind.IncludeArrayIndex != "" {
			d := domain.NewDocument(domain.Field{Key: "path", Value: spec})
			if s.unwind.IncludeArrayIndex != "" {
				d.Set("includeArrayIndex", domain.String(s.unwind.IncludeArrayIndex))
			}
			if s.unwind.PreserveNullAndEmptyArrays {
				d.Set("preserveNullAndEmptyArrays", domain.Bool(true))
			}
			spec = domain.Doc(d)
		}
	case StageAddFields:
		d := domain.NewDocument()
		for _, f := range s.set {
			d.Set(f.Key, f.Expr.Serialize())
		}
		spec = domain.Doc(d)
	case StageUnset:
		items := make([]domain.Value, len(s.unset))
		for n, f := range s.unset {
			items[n] = domain.String(f)
		}
		spec = domain.Array(items...)
	case StageReplaceRoot:
		spec = domain.Doc(domain.NewDocument(domain.Field{Key: "newRoot", Value: s.expr.Serialize()}))
	case StageLookup:
		spec = domain.Doc(domain.NewDocument(
			domain.Field{Key: "from", Value: domain.String(s.lookup.From)},
			domain.Field{Key: "localField", Value: domain.String(s.lookup.LocalField)},
			domain.Field{Key: "foreignField", Value: domain.String(s.lookup.ForeignField)},
			domain.Field{Key: "as", Value: domain.String(s.lookup.As)},
		))
	case StageSortByCount:
		spec = s.expr.Serialize()
	}
	return domain.NewDocument(domain.Field{Key: s.kind.String(), Value: spec})
}

// String returns the stage in shell notation.
func (s Stage) String() string { return s.Document().String() }
