package phrasebook

import (
	"context"
	"sync"
)

// DefaultBatchConcurrency is used when TranslateAll is given no limit.
const DefaultBatchConcurrency = 4

// BatchResult is the outcome for one text passed to TranslateAll.
type BatchResult struct {
	Text   string
	Result TranslationResult
	Err    error
}

// TranslateAll translates texts with at most concurrency calls in flight and
// returns one BatchResult per input, in input order. Texts that are equal
// after trimming are resolved once and share the result.
//
// It is meant for warming the cache with a known phrase list, so one failed
// text does not stop the others.
func (t *Translator) TranslateAll(ctx context.Context, texts []string, srcLang, tgtLang string, concurrency int) []BatchResult {
	results := make([]BatchResult, len(texts))
	if len(texts) == 0 {
		return results
	}
	if concurrency <= 0 {
		concurrency = DefaultBatchConcurrency
	}

	// Deduplicate by normalized text, keeping the first index of each
	unique := make(map[string]int, len(texts))
	var jobs []int
	for i, text := range texts {
		results[i].Text = text
		norm := NormalizeText(text)
		if _, exists := unique[norm]; !exists {
			unique[norm] = i
			jobs = append(jobs, i)
		}
	}

	work := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < min(concurrency, len(jobs)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range work {
				res, err := t.Translate(ctx, texts[i], srcLang, tgtLang)
				results[i].Result = res
				results[i].Err = err
			}
		}()
	}

	for _, i := range jobs {
		work <- i
	}
	close(work)
	wg.Wait()

	// Fill duplicates from their first occurrence
	for i, text := range texts {
		first := unique[NormalizeText(text)]
		if first != i {
			results[i].Result = results[first].Result
			results[i].Err = results[first].Err
		}
	}

	return results
}
