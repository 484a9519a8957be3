package pipeline

import (
	"github.com/rotisserie/eris"

	"github.com/owlmanandy/superfund-counties/internal/dataset"
)

// JoinResult reports the outcome of a join.
type JoinResult struct {
	// Codes holds the names the joined columns received on the target.
	Codes   Codes
	Matched int
}

// Join copies the code columns from source into target, matching target's
// targetKey against source's sourceKey. The first matching source row wins and
// unmatched target rows get nulls. Joined columns whose names are taken on the
// target are renamed with a numeric suffix.
func Join(target *dataset.Table, targetKey string, source *dataset.Table, sourceKey string, codes Codes) (JoinResult, error) {
	list, err := codes.List()
	if err != nil {
		return JoinResult{}, err
	}

	tk := target.FieldIndex(targetKey)
	if tk < 0 {
		return JoinResult{}, eris.Wrapf(dataset.ErrFieldNotFound, "pipeline: join key %s in %s", targetKey, target.Name)
	}
	sk := source.FieldIndex(sourceKey)
	if sk < 0 {
		return JoinResult{}, eris.Wrapf(dataset.ErrFieldNotFound, "pipeline: join key %s in %s", sourceKey, source.Name)
	}

	srcCols := make([]int, len(list))
	for i, name := range list {
		srcCols[i] = source.FieldIndex(name)
		if srcCols[i] < 0 {
			return JoinResult{}, eris.Wrapf(dataset.ErrFieldNotFound, "pipeline: join field %s in %s", name, source.Name)
		}
	}

	lookup := make(map[string]int, source.Len())
	for r, row := range source.Rows {
		if row[sk] == nil {
			continue
		}
		key := dataset.Text(row[sk])
		if _, seen := lookup[key]; !seen {
			lookup[key] = r
		}
	}

	names := make([]string, len(list))
	dstCols := make([]int, len(list))
	for i, c := range srcCols {
		f := source.Fields[c]
		f.Name = target.UniqueName(f.Name)
		idx, err := target.AddField(f)
		if err != nil {
			return JoinResult{}, eris.Wrapf(err, "pipeline: join field %s", f.Name)
		}
		names[i], dstCols[i] = f.Name, idx
	}

	res := JoinResult{Codes: codesFrom(names)}
	for r, row := range target.Rows {
		if row[tk] == nil {
			continue
		}
		sr, ok := lookup[dataset.Text(row[tk])]
		if !ok {
			continue
		}
		for i, c := range srcCols {
			target.Set(r, dstCols[i], source.Rows[sr][c])
		}
		res.Matched++
	}
	return res, nil
}
