package schema

import "sort"

// CartesianProduct enumerates every combination of the given keyfield
// value domains, row-major: the last field varies fastest. It mirrors
// utils.get_cartesian_product from the original fill_table() path.
func CartesianProduct(domains map[string][]any) []map[string]any {
	names := make([]string, 0, len(domains))
	for name := range domains {
		names = append(names, name)
	}
	sort.Strings(names)

	total := 1
	for _, name := range names {
		total *= len(domains[name])
	}
	if total == 0 || len(names) == 0 {
		return nil
	}

	rows := make([]map[string]any, total)
	for i := range rows {
		row := make(map[string]any, len(names))
		idx := i
		for j := len(names) - 1; j >= 0; j-- {
			name := names[j]
			values := domains[name]
			row[name] = values[idx%len(values)]
			idx /= len(values)
		}
		rows[i] = row
	}
	return rows
}
