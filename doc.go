// Package phrasebook resolves short phrases between two configured languages.
//
// A Translator answers from a persistent cache when it can. On a miss it
// hands the phrase to an Orchestrator, which walks an ordered list of
// providers: metered backends are skipped once their monthly character
// budget is spent, failures move on to the next provider, and the first
// success is charged to quota and written back to the cache. An offline
// provider at the end of the chain keeps translations available without a
// network.
//
// Basic usage:
//
//	import (
//	    "context"
//	    "github.com/ZaguanLabs/phrasebook"
//	    "github.com/ZaguanLabs/phrasebook/cache"
//	    "github.com/ZaguanLabs/phrasebook/provider"
//	    "github.com/ZaguanLabs/phrasebook/quota"
//	)
//
//	func main() {
//	    google := provider.NewGoogleProvider(provider.GoogleConfig{
//	        APIKey:       os.Getenv("GOOGLE_TRANSLATE_API_KEY"),
//	        MonthlyLimit: 500_000,
//	    })
//	    offline, _ := provider.NewPhrasebookProvider(provider.PhrasebookConfig{Priority: 10})
//
//	    providers := []phrasebook.Provider{google, offline}
//	    orch, _ := phrasebook.NewOrchestrator(phrasebook.OrchestratorConfig{
//	        Providers: providers,
//	        Quota:     quota.NewMemoryTracker([]phrasebook.ProviderDescriptor{google.Descriptor()}),
//	        Cache:     cache.NewMemoryStore(),
//	    })
//
//	    t := phrasebook.NewTranslator(orch, phrasebook.WithLanguagePair("ja", "ko"))
//	    result, err := t.Translate(context.Background(), "ありがとう", "", "")
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Println(result.TranslatedText) // 감사합니다
//	}
package phrasebook
