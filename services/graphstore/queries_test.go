// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graphstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func enterpriseStore() *StaticStore {
	return NewStaticStore().WithClass(ClassInfo{
		Name:          "EnterpriseNewsAndEvents",
		Attributes:    []string{"title", "id", "content", "title"},
		QualifiedName: "cpdvalet-api.cpd_shared.news_and_events.resources.EnterpriseNewsAndEvents",
		FilePath:      "cpd_shared/news_and_events/resources.py",
	})
}

func TestClassAttributes(t *testing.T) {
	info, err := ClassAttributes(context.Background(), enterpriseStore(), "EnterpriseNewsAndEvents")
	require.NoError(t, err)

	assert.Equal(t, "EnterpriseNewsAndEvents", info.Name)
	assert.Equal(t, []string{"content", "id", "title"}, info.Attributes)
	assert.Contains(t, info.Describe(), "has 3 attributes: content, id, title")
}

func TestClassAttributes_NotFound(t *testing.T) {
	_, err := ClassAttributes(context.Background(), enterpriseStore(), "Missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrClassNotFound))

	var notFound *ClassNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "Missing", notFound.Class)
}

func TestClassAttributes_StoreError(t *testing.T) {
	boom := errors.New("connection reset")
	store := NewStaticStore().FailQuery("HAS_ATTRIBUTE", boom)

	_, err := ClassAttributes(context.Background(), store, "EnterpriseNewsAndEvents")
	assert.ErrorIs(t, err, boom)
}

func TestClassPath(t *testing.T) {
	paths, err := ClassPath(context.Background(), enterpriseStore(), "EnterpriseNewsAndEvents")
	require.NoError(t, err)
	assert.Equal(t, []string{"cpdvalet-api.cpd_shared.news_and_events.resources.EnterpriseNewsAndEvents"}, paths)
}

func TestSchema(t *testing.T) {
	store := NewStaticStore().WithSchema(
		[]string{"Attribute", "Class", "Module"},
		[]string{"DEFINES", "HAS_ATTRIBUTE"},
	)
	schema, err := Schema(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, []string{"Attribute", "Class", "Module"}, schema.Labels)
	assert.Equal(t, []string{"DEFINES", "HAS_ATTRIBUTE"}, schema.RelationshipTypes)
}

func TestStaticStore_Closed(t *testing.T) {
	store := NewStaticStore()
	require.NoError(t, store.Close(context.Background()))

	_, err := store.Query(context.Background(), "MATCH (n) RETURN n", nil)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, store.Ping(context.Background()), ErrClosed)
}
