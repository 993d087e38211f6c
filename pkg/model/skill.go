package model

const (
	// SkillURIScheme is the prefix of every skill resource URI
	SkillURIScheme = "skill://"

	// MarkdownMIMEType is the MIME type of every skill resource
	MarkdownMIMEType = "text/markdown"
)

// SkillResource is the advertised form of one markdown file in the skills directory
type SkillResource struct {
	URI         string
	Name        string
	Description string
	MIMEType    string
}

// CollectionSource maps a subdirectory of the knowledge root to a collection
type CollectionSource struct {
	Collection string `yaml:"collection"`
	Directory  string `yaml:"directory"`
}

// DefaultCollectionSources is the ingestion mapping used when no mapping file is given
func DefaultCollectionSources() []CollectionSource {
	return []CollectionSource{
		{Collection: "default", Directory: "general"},
		{Collection: "guides", Directory: "guides"},
	}
}
