package cleanup

import "github.com/joelkehle/consultkit/internal/textsim"

// Cluster groups sentences in one pass. Each sentence is compared with the
// first member of every existing cluster, in creation order, and joins the
// first one scoring at least threshold; otherwise it starts a new cluster.
// A later cluster that would match better is never considered, so the
// result depends on input order.
func Cluster(sentences []string, threshold float64) [][]int {
	var clusters [][]int
	for i, s := range sentences {
		placed := false
		for c := range clusters {
			rep := sentences[clusters[c][0]]
			if textsim.Similarity(s, rep) >= threshold {
				clusters[c] = append(clusters[c], i)
				placed = true
				break
			}
		}
		if !placed {
			clusters = append(clusters, []int{i})
		}
	}
	return clusters
}
