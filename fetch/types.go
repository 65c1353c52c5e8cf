// Package fetch реализует Read Router: последовательный перебор remote-хранилищ
// по приоритету для GetObject/HeadObject/ListObjectsV2, и Listing Token Translator,
// транслирующий S3-семантику continuation_token в переносимые (start_after key) записи.
package fetch

import (
	"sort"

	"s3proxy/backend"
	"s3proxy/metadatastore"
)

// Fetcher реализует routing.FetchingExecutor.
type Fetcher struct {
	remoteManager *backend.Manager
	store         metadatastore.Store
	virtualBucket string
}

// NewFetcher создает новый Fetcher.
func NewFetcher(remoteManager *backend.Manager, store metadatastore.Store, virtualBucket string) *Fetcher {
	return &Fetcher{
		remoteManager: remoteManager,
		store:         store,
		virtualBucket: virtualBucket,
	}
}

// candidateOrder возвращает все remote в порядке предпочтения чтения: сперва
// read_request=true (по убыванию priority), затем read_request=false-фоллбэки
// (тоже по убыванию priority). Единая стабильная сортировка по композитному
// ключу (read_request desc, priority desc) реализует и основной порядок, и
// фоллбэк на "запасные" remote одновременно.
func (f *Fetcher) candidateOrder() []*backend.Remote {
	remotes := f.remoteManager.GetAllRemotes()
	ordered := make([]*backend.Remote, len(remotes))
	copy(ordered, remotes)

	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].ReadRequest != ordered[j].ReadRequest {
			return ordered[i].ReadRequest // true перед false
		}
		return ordered[i].Priority > ordered[j].Priority
	})

	return ordered
}
