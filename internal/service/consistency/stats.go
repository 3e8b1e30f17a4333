// Package consistency measures inter-reviewer agreement for a manuscript:
// pairwise agreement, recommendation and score variance, divergent and
// consensus criteria, inter-rater reliability, and Cohen's kappa.
package consistency

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/openjournal-dev/review-quality-service/internal/models"
)

// ordinalSpan is the width of the recommendation ordinal scale (5 - 2).
const ordinalSpan = 3.0

// criteriaSpan is the width of the 1..5 criteria scoring scale.
const criteriaSpan = 4.0

// recommendationOrdinals maps the reviews onto the ordinal scale, skipping
// reviews with unknown recommendations.
func recommendationOrdinals(reviews []models.Review) []float64 {
	ords := make([]float64, 0, len(reviews))
	for _, rev := range reviews {
		if ord, ok := models.RecommendationOrdinal[rev.Recommendation]; ok {
			ords = append(ords, ord)
		}
	}
	return ords
}

// populationVariance computes the population variance of the values.
func populationVariance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return sq / float64(len(values))
}

// pairAgreement scores how closely two reviews agree, blending recommendation
// distance with mean criteria score distance. Both components map linearly
// onto [0,1], 1 meaning identical judgments.
func pairAgreement(a, b models.Review) float64 {
	recAgreement := 1.0
	ordA, okA := models.RecommendationOrdinal[a.Recommendation]
	ordB, okB := models.RecommendationOrdinal[b.Recommendation]
	if okA && okB {
		recAgreement = 1 - math.Abs(ordA-ordB)/ordinalSpan
	}

	scoresA, errA := models.DecodeMetricBag(a.CriteriaScores)
	scoresB, errB := models.DecodeMetricBag(b.CriteriaScores)
	if errA != nil || errB != nil {
		return round2(recAgreement)
	}

	var criteriaSum float64
	shared := 0
	for name, va := range scoresA {
		vb, ok := scoresB[name]
		if !ok {
			continue
		}
		criteriaSum += 1 - math.Abs(va-vb)/criteriaSpan
		shared++
	}
	if shared == 0 {
		return round2(recAgreement)
	}

	criteriaAgreement := criteriaSum / float64(shared)
	return round2(0.5*recAgreement + 0.5*criteriaAgreement)
}

// buildAgreementMatrix computes the pairwise agreement entries and the mean
// pairwise agreement across all reviewer pairs.
func buildAgreementMatrix(reviews []models.Review) ([]models.PairAgreement, float64) {
	var pairs []models.PairAgreement
	var sum float64
	for i := 0; i < len(reviews); i++ {
		for j := i + 1; j < len(reviews); j++ {
			agreement := pairAgreement(reviews[i], reviews[j])
			pairs = append(pairs, models.PairAgreement{
				ReviewerA: reviews[i].ReviewerID,
				ReviewerB: reviews[j].ReviewerID,
				Agreement: agreement,
			})
			sum += agreement
		}
	}
	if len(pairs) == 0 {
		return pairs, 0
	}
	return pairs, round2(sum / float64(len(pairs)))
}

// criterionVariances computes per-criterion population variance across all
// reviews that scored the criterion.
func criterionVariances(reviews []models.Review) map[string]float64 {
	byCriterion := make(map[string][]float64)
	for _, rev := range reviews {
		scores, err := models.DecodeMetricBag(rev.CriteriaScores)
		if err != nil {
			continue
		}
		for name, v := range scores {
			byCriterion[name] = append(byCriterion[name], v)
		}
	}

	variances := make(map[string]float64, len(byCriterion))
	for name, values := range byCriterion {
		if len(values) < 2 {
			continue
		}
		variances[name] = populationVariance(values)
	}
	return variances
}

// pairKappa computes Cohen's kappa for one reviewer pair, treating the shared
// criteria as rated items on the 1..5 categorical scale.
func pairKappa(a, b models.Review) (float64, bool) {
	scoresA, errA := models.DecodeMetricBag(a.CriteriaScores)
	scoresB, errB := models.DecodeMetricBag(b.CriteriaScores)
	if errA != nil || errB != nil {
		return 0, false
	}

	var ratingsA, ratingsB []int
	for name, va := range scoresA {
		vb, ok := scoresB[name]
		if !ok {
			continue
		}
		ratingsA = append(ratingsA, int(math.Round(va)))
		ratingsB = append(ratingsB, int(math.Round(vb)))
	}
	n := len(ratingsA)
	if n == 0 {
		return 0, false
	}

	agreed := 0
	countsA := make(map[int]float64)
	countsB := make(map[int]float64)
	for i := 0; i < n; i++ {
		if ratingsA[i] == ratingsB[i] {
			agreed++
		}
		countsA[ratingsA[i]]++
		countsB[ratingsB[i]]++
	}

	observed := float64(agreed) / float64(n)
	var expected float64
	for category, ca := range countsA {
		expected += (ca / float64(n)) * (countsB[category] / float64(n))
	}
	if expected >= 1 {
		// Both raters used a single category; agreement carries no information.
		return 0, false
	}
	return (observed - expected) / (1 - expected), true
}

// meanKappa averages pairwise Cohen's kappa over all reviewer pairs with
// shared criteria.
func meanKappa(reviews []models.Review) float64 {
	var sum float64
	pairs := 0
	for i := 0; i < len(reviews); i++ {
		for j := i + 1; j < len(reviews); j++ {
			if k, ok := pairKappa(reviews[i], reviews[j]); ok {
				sum += k
				pairs++
			}
		}
	}
	if pairs == 0 {
		return 0
	}
	return round2(sum / float64(pairs))
}

// interRaterReliability maps recommendation variance onto [0,1]. The worst
// possible population variance on the 2..5 ordinal scale is 2.25 (half the
// panel at each extreme).
func interRaterReliability(recVariance float64) float64 {
	r := 1 - recVariance/2.25
	if r < 0 {
		r = 0
	}
	if r > 1 {
		r = 1
	}
	return round2(r)
}

// encodePairs serializes the agreement matrix for jsonb storage.
func encodePairs(pairs []models.PairAgreement) (json.RawMessage, error) {
	if pairs == nil {
		pairs = []models.PairAgreement{}
	}
	return json.Marshal(pairs)
}

// sorted returns the list in stable name order so stored areas are deterministic.
func sorted(list []string) []string {
	if list == nil {
		return []string{}
	}
	sort.Strings(list)
	return list
}

// round2 rounds to two decimal places.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
