package repository

import "github.com/m-mizutani/lorekeeper/pkg/model"

type KnownCollections = knownCollections

var NewKnownCollections = newKnownCollections

func (k *knownCollections) Ensure(name string, create func() error) error {
	return k.ensure(name, create)
}

func ValidateMilvusContent(collection string, docs []*model.Document) error {
	return validateMilvusContent(collection, docs)
}
