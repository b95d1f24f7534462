package arc

import (
	"fmt"
	"slices"
	"time"
)

// Archive is an isolated namespace of documents, tags, collections and commits.
type Archive struct {
	Name    string    `json:"name" yaml:"name"`
	Created time.Time `json:"created" yaml:"created"`
	Updated time.Time `json:"updated" yaml:"updated"`
}

// Stat names one of an archivist's activity counters.
type Stat int

const (
	StatDocumentsCreated Stat = iota
	StatDocumentsUpdated
	StatCollectionsCreated
	StatCollectionsUpdated
)

func (s Stat) String() string {
	switch s {
	case StatDocumentsCreated:
		return "documentsCreated"
	case StatDocumentsUpdated:
		return "documentsUpdated"
	case StatCollectionsCreated:
		return "collectionsCreated"
	case StatCollectionsUpdated:
		return "collectionsUpdated"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Stats counts what an archivist has done in one archive.
type Stats struct {
	DocumentsCreated   int64 `json:"documentsCreated" yaml:"documentsCreated"`
	DocumentsUpdated   int64 `json:"documentsUpdated" yaml:"documentsUpdated"`
	CollectionsCreated int64 `json:"collectionsCreated" yaml:"collectionsCreated"`
	CollectionsUpdated int64 `json:"collectionsUpdated" yaml:"collectionsUpdated"`
}

// Bump increments the counter named by stat.
func (s *Stats) Bump(stat Stat) {
	switch stat {
	case StatDocumentsCreated:
		s.DocumentsCreated++
	case StatDocumentsUpdated:
		s.DocumentsUpdated++
	case StatCollectionsCreated:
		s.CollectionsCreated++
	case StatCollectionsUpdated:
		s.CollectionsUpdated++
	}
}

// Archivist is a user registered within one archive.
type Archivist struct {
	Username    string    `json:"username" yaml:"username"`
	DisplayName string    `json:"displayName" yaml:"displayName"`
	Stats       Stats     `json:"stats" yaml:"stats"`
	Created     time.Time `json:"created" yaml:"created"`
}

// DocumentMeta is the mutable part of a document. It is stored inside the
// document blob; the payload itself never changes.
type DocumentMeta struct {
	Name      string            `json:"name" yaml:"name"`
	FileType  string            `json:"fileType" yaml:"fileType"`
	Archivist string            `json:"archivist" yaml:"archivist"`
	Tags      []string          `json:"tags" yaml:"tags"`
	Created   time.Time         `json:"created" yaml:"created"`
	Updated   time.Time         `json:"updated" yaml:"updated"`
	Extra     map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// HasTag reports whether the metadata carries tag.
func (m *DocumentMeta) HasTag(tag string) bool {
	return slices.Contains(m.Tags, tag)
}

// Document is a content-addressed payload plus its metadata.
// Hash is always the SHA-256 hex digest of Payload.
type Document struct {
	Hash    string
	Payload []byte
	Meta    DocumentMeta
}

// DocumentInput is what a caller supplies when creating a document.
// FileType may be left empty, in which case it is derived from Name.
type DocumentInput struct {
	Name     string            `json:"name"`
	FileType string            `json:"fileType,omitempty"`
	Tags     []string          `json:"tags,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// Collection is an ordered, taggable grouping of document hashes.
type Collection struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Creator     string    `json:"creator" yaml:"creator"`
	Maintainers []string  `json:"maintainers" yaml:"maintainers"`
	Documents   []string  `json:"documents" yaml:"documents"`
	Tags        []string  `json:"tags" yaml:"tags"`
	Created     time.Time `json:"created" yaml:"created"`
	Updated     time.Time `json:"updated" yaml:"updated"`
}

// CollectionQuery filters collections. Empty fields match everything.
type CollectionQuery struct {
	NameContains string   // case-insensitive substring of the name
	AnyTags      []string // at least one of these tags
	AllTags      []string // every one of these tags
	NoneTags     []string // none of these tags
}

// Matches reports whether c satisfies the query.
func (q CollectionQuery) Matches(c *Collection) bool {
	if q.NameContains != "" && !containsFold(c.Name, q.NameContains) {
		return false
	}
	if len(q.AnyTags) > 0 && !slices.ContainsFunc(q.AnyTags, func(t string) bool { return slices.Contains(c.Tags, t) }) {
		return false
	}
	for _, t := range q.AllTags {
		if !slices.Contains(c.Tags, t) {
			return false
		}
	}
	for _, t := range q.NoneTags {
		if slices.Contains(c.Tags, t) {
			return false
		}
	}
	return true
}

// Space selects one of the two tag index namespaces. Document hashes and
// collection ids never share an index file.
type Space string

const (
	SpaceDocuments   Space = "documents"
	SpaceCollections Space = "collections"
)

// Spaces lists every tag space.
var Spaces = []Space{SpaceDocuments, SpaceCollections}

// Change operations recorded in the commit log.
const (
	OpArchiveCreate            = "archive.create"
	OpArchivistRegister        = "archivist.register"
	OpDocumentCreate           = "document.create"
	OpDocumentDelete           = "document.delete"
	OpDocumentRename           = "document.rename"
	OpDocumentFileType         = "document.filetype"
	OpDocumentTagAdd           = "document.tag.add"
	OpDocumentTagRemove        = "document.tag.remove"
	OpCollectionCreate         = "collection.create"
	OpCollectionRename         = "collection.rename"
	OpCollectionDocumentAdd    = "collection.document.add"
	OpCollectionDocumentRemove = "collection.document.remove"
	OpCollectionReorder        = "collection.document.reorder"
	OpCollectionMaintainerAdd  = "collection.maintainer.add"
	OpCollectionTagAdd         = "collection.tag.add"
	OpCollectionTagRemove      = "collection.tag.remove"
	OpTagRename                = "tag.rename"
)

// Change describes one mutation. Subject is the hash, uuid, username or
// tag the operation applied to.
type Change struct {
	Op        string            `json:"op" yaml:"op"`
	Subject   string            `json:"subject" yaml:"subject"`
	Archivist string            `json:"archivist,omitempty" yaml:"archivist,omitempty"`
	Params    map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
}

// AllCommits is the walk limit that follows the chain to the first commit.
const AllCommits = -1

// Commit is one immutable entry of an archive's audit chain. Parent is
// the empty string for the first commit.
type Commit struct {
	Hash      string    `json:"hash" yaml:"hash"`
	Parent    string    `json:"parent" yaml:"parent"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Changes   []Change  `json:"changes" yaml:"changes"`
}
