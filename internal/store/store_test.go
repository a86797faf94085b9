package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/entitext/internal/models"
	"github.com/ajitpratap0/entitext/internal/schema"
)

// eachStore runs fn against every Store implementation.
func eachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Helper()
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore())
	})
	t.Run("sqlite", func(t *testing.T) {
		s, err := NewSQLiteStore(context.Background(), MemoryDSN)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		fn(t, s)
	})
}

type fixture struct {
	project models.Project
	person  models.EntityType
	page    models.Page
}

func personSchema() schema.Schema {
	return schema.Schema{
		{"name": "display_name", "label": "Name", "type": "text", "required": true},
		{"name": "born", "label": "Born", "type": "date"},
	}
}

func seed(t *testing.T, s Store) fixture {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	p := models.Project{ID: NewID(), Title: "Letters", Owner: "ada", CreatedAt: now}
	require.NoError(t, s.CreateProject(ctx, p))

	et := models.EntityType{
		ID: NewID(), ProjectID: p.ID, Name: "Person", Color: "#ff0000",
		Schema: personSchema(), IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateEntityType(ctx, et))

	d := models.Document{ID: NewID(), ProjectID: p.ID, Title: "Volume 1", CreatedAt: now}
	require.NoError(t, s.CreateDocument(ctx, d))

	pg := models.Page{ID: NewID(), DocumentID: d.ID, Order: 1, Text: "The quick fox", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.CreatePage(ctx, pg))

	return fixture{project: p, person: et, page: pg}
}

func saveEntity(t *testing.T, s Store, et *models.EntityType, name string) *models.Entity {
	t.Helper()
	e := models.NewEntity(NewID(), et, map[string]any{"display_name": name})
	e.CreatedAt = time.Now().UTC()
	e.UpdatedAt = e.CreatedAt
	require.NoError(t, s.SaveEntity(context.Background(), e))
	return e
}

func annotate(s Store, pageID, entityID string, start, end int, text string) (models.Annotation, error) {
	now := time.Now().UTC()
	a := models.Annotation{
		ID: NewID(), PageID: pageID, EntityID: entityID,
		StartOffset: start, EndOffset: end, AnnotatedText: text,
		CreatedAt: now, UpdatedAt: now,
	}
	return a, s.InsertAnnotation(context.Background(), a)
}

func TestStore_ProjectsByOwner(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		now := time.Now().UTC()
		require.NoError(t, s.CreateProject(ctx, models.Project{ID: "p1", Title: "A", Owner: "ada", CreatedAt: now}))
		require.NoError(t, s.CreateProject(ctx, models.Project{ID: "p2", Title: "B", Owner: "bob", CreatedAt: now.Add(time.Second)}))
		require.NoError(t, s.CreateProject(ctx, models.Project{ID: "p3", Title: "C", Owner: "ada", CreatedAt: now.Add(2 * time.Second)}))

		got, err := s.ListProjects(ctx, "ada")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "p1", got[0].ID)
		assert.Equal(t, "p3", got[1].ID)

		all, err := s.ListProjects(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 3)

		err = s.CreateProject(ctx, models.Project{ID: "p1", Title: "dup", CreatedAt: now})
		assert.ErrorIs(t, err, ErrConflict)

		_, err = s.GetProject(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_EntityTypeNameUniquePerProject(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		fx := seed(t, s)
		now := time.Now().UTC()

		dup := models.EntityType{ID: NewID(), ProjectID: fx.project.ID, Name: "Person", Color: "#000000", Schema: personSchema(), CreatedAt: now, UpdatedAt: now}
		assert.ErrorIs(t, s.CreateEntityType(ctx, dup), ErrConflict)

		other := models.Project{ID: NewID(), Title: "Other", CreatedAt: now}
		require.NoError(t, s.CreateProject(ctx, other))
		dup.ProjectID = other.ID
		assert.NoError(t, s.CreateEntityType(ctx, dup), "same name in another project is allowed")

		place := models.EntityType{ID: NewID(), ProjectID: fx.project.ID, Name: "Place", Color: "#00ff00", Schema: personSchema(), CreatedAt: now, UpdatedAt: now}
		require.NoError(t, s.CreateEntityType(ctx, place))
		place.Name = "Person"
		assert.ErrorIs(t, s.UpdateEntityType(ctx, place), ErrConflict, "rename onto an existing name")

		missing := models.EntityType{ID: NewID(), ProjectID: "nope", Name: "X", Schema: personSchema()}
		assert.ErrorIs(t, s.CreateEntityType(ctx, missing), ErrNotFound)
	})
}

func TestStore_ListEntityTypesActiveOnly(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		fx := seed(t, s)
		now := time.Now().UTC()

		retired := models.EntityType{ID: NewID(), ProjectID: fx.project.ID, Name: "Archive", Color: "#111111", Schema: personSchema(), IsActive: false, CreatedAt: now, UpdatedAt: now}
		require.NoError(t, s.CreateEntityType(ctx, retired))

		active, err := s.ListEntityTypes(ctx, fx.project.ID, true)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, "Person", active[0].Name)
		assert.Equal(t, "display_name", active[0].Schema[0].Name())

		all, err := s.ListEntityTypes(ctx, fx.project.ID, false)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "Archive", all[0].Name, "ordered by name")
	})
}

func TestStore_EntityRoundTripAndIsolation(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		fx := seed(t, s)

		e := saveEntity(t, s, &fx.person, "Ada Lovelace")
		got, err := s.GetEntity(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, "Ada Lovelace", got.DisplayName())
		assert.Equal(t, fx.project.ID, got.ProjectID())
		assert.Equal(t, fx.person.ID, got.EntityTypeID())

		got.Metadata["display_name"] = "mutated"
		again, err := s.GetEntity(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, "Ada Lovelace", again.DisplayName())

		e.Metadata["display_name"] = "Ada King"
		require.NoError(t, s.SaveEntity(ctx, e))
		again, err = s.GetEntity(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, "Ada King", again.DisplayName())

		_, err = s.GetEntity(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_SearchEntities(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		fx := seed(t, s)
		for _, name := range []string{"Ada Lovelace", "Charles Babbage", "Ada King", "Mary Somerville"} {
			saveEntity(t, s, &fx.person, name)
		}

		got, err := s.SearchEntities(ctx, EntityFilter{ProjectID: fx.project.ID, Query: "ADA"})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "Ada Lovelace", got[0].DisplayName(), "creation order")
		assert.Equal(t, "Ada King", got[1].DisplayName())

		got, err = s.SearchEntities(ctx, EntityFilter{ProjectID: fx.project.ID, Limit: 3})
		require.NoError(t, err)
		assert.Len(t, got, 3)

		got, err = s.SearchEntities(ctx, EntityFilter{ProjectID: fx.project.ID, EntityTypeID: "other", Query: "a"})
		require.NoError(t, err)
		assert.Empty(t, got)

		got, err = s.SearchEntities(ctx, EntityFilter{ProjectID: "another", Query: "a"})
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestStore_DeleteProtection(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		fx := seed(t, s)
		e := saveEntity(t, s, &fx.person, "Fox")

		a, err := annotate(s, fx.page.ID, e.ID, 10, 13, "fox")
		require.NoError(t, err)

		assert.ErrorIs(t, s.DeleteEntity(ctx, e.ID), ErrProtected)
		assert.ErrorIs(t, s.DeleteEntityType(ctx, fx.person.ID), ErrProtected)

		require.NoError(t, s.DeleteAnnotation(ctx, a.ID))
		_, err = s.GetEntity(ctx, e.ID)
		require.NoError(t, err, "deleting an annotation keeps its entity")

		require.NoError(t, s.DeleteEntity(ctx, e.ID))
		require.NoError(t, s.DeleteEntityType(ctx, fx.person.ID))

		assert.ErrorIs(t, s.DeleteAnnotation(ctx, a.ID), ErrNotFound)
		assert.ErrorIs(t, s.DeleteEntity(ctx, e.ID), ErrNotFound)
		assert.ErrorIs(t, s.DeleteEntityType(ctx, fx.person.ID), ErrNotFound)
	})
}

func createType(t *testing.T, s Store, projectID, name string, sch schema.Schema) models.EntityType {
	t.Helper()
	now := time.Now().UTC()
	et := models.EntityType{
		ID: NewID(), ProjectID: projectID, Name: name, Color: "#00ff00",
		Schema: sch, IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateEntityType(context.Background(), et))
	return et
}

func TestStore_DeleteProtectsReferenceTargets(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		fx := seed(t, s)

		letter := createType(t, s, fx.project.ID, "Letter", schema.Schema{
			{"name": "display_name", "label": "Title", "type": "text"},
			{"name": "author", "label": "Author", "type": "reference", "target_entity_type_id": fx.person.ID},
		})
		ada := saveEntity(t, s, &fx.person, "Ada")
		charles := saveEntity(t, s, &fx.person, "Charles")

		note := models.NewEntity(NewID(), &letter, map[string]any{
			"display_name": "To Charles",
			"author":       strings.ToUpper(ada.ID),
		})
		require.NoError(t, s.SaveEntity(ctx, note))

		assert.ErrorIs(t, s.DeleteEntity(ctx, ada.ID), ErrProtected)
		require.NoError(t, s.DeleteEntity(ctx, charles.ID))

		note.Metadata["author"] = nil
		require.NoError(t, s.SaveEntity(ctx, note))
		require.NoError(t, s.DeleteEntity(ctx, ada.ID))

		place := createType(t, s, fx.project.ID, "Place", schema.Schema{
			{"name": "display_name", "label": "Name", "type": "text"},
		})
		trip := createType(t, s, fx.project.ID, "Trip", schema.Schema{
			{"name": "to", "label": "To", "type": "reference", "target_entity_type_id": place.ID},
		})
		assert.ErrorIs(t, s.DeleteEntityType(ctx, place.ID), ErrProtected)
		require.NoError(t, s.DeleteEntityType(ctx, trip.ID))
		require.NoError(t, s.DeleteEntityType(ctx, place.ID))

		now := time.Now().UTC()
		topicID := NewID()
		topic := models.EntityType{
			ID: topicID, ProjectID: fx.project.ID, Name: "Topic", Color: "#0000ff", IsActive: true,
			Schema: schema.Schema{
				{"name": "see_also", "label": "See also", "type": "reference", "target_entity_type_id": topicID},
			},
			CreatedAt: now, UpdatedAt: now,
		}
		require.NoError(t, s.CreateEntityType(ctx, topic))
		require.NoError(t, s.DeleteEntityType(ctx, topic.ID), "a type referencing only itself can be deleted")
	})
}

func TestStore_PageAnnotations(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		fx := seed(t, s)
		e := saveEntity(t, s, &fx.person, "Fox")
		_, err := annotate(s, fx.page.ID, e.ID, 10, 13, "fox")
		require.NoError(t, err)
		_, err = annotate(s, fx.page.ID, e.ID, 0, 3, "The")
		require.NoError(t, err)

		pg, anns, err := s.PageAnnotations(ctx, fx.page.ID)
		require.NoError(t, err)
		assert.Equal(t, "The quick fox", pg.Text)
		require.Len(t, anns, 2)
		assert.Equal(t, []int{0, 10}, []int{anns[0].StartOffset, anns[1].StartOffset})

		_, _, err = s.PageAnnotations(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_InsertAnnotationChecksSnapshot(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		fx := seed(t, s)
		e := saveEntity(t, s, &fx.person, "Fox")

		_, err := annotate(s, fx.page.ID, e.ID, 10, 13, "cat")
		assert.ErrorIs(t, err, ErrStaleSnapshot)

		_, err = annotate(s, "missing", e.ID, 0, 3, "The")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = annotate(s, fx.page.ID, "missing", 0, 3, "The")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = annotate(s, fx.page.ID, e.ID, 10, 13, "fox")
		require.NoError(t, err)
		_, err = annotate(s, fx.page.ID, e.ID, 0, 3, "The")
		require.NoError(t, err)
		_, err = annotate(s, fx.page.ID, e.ID, 4, 9, "quick")
		require.NoError(t, err)

		anns, err := s.ListAnnotations(ctx, fx.page.ID)
		require.NoError(t, err)
		require.Len(t, anns, 3)
		assert.Equal(t, []int{0, 4, 10}, []int{anns[0].StartOffset, anns[1].StartOffset, anns[2].StartOffset})
	})
}

func TestStore_ReplacePageText(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		fx := seed(t, s)
		e := saveEntity(t, s, &fx.person, "Fox")
		_, err := annotate(s, fx.page.ID, e.ID, 10, 13, "fox")
		require.NoError(t, err)

		anns, err := s.ReplacePageText(ctx, fx.page.ID, "A quick fox")
		require.NoError(t, err)
		require.Len(t, anns, 1)
		assert.Equal(t, "fox", anns[0].AnnotatedText)

		pg, err := s.GetPage(ctx, fx.page.ID)
		require.NoError(t, err)
		assert.Equal(t, "A quick fox", pg.Text)

		_, err = s.ReplacePageText(ctx, "missing", "x")
		assert.ErrorIs(t, err, ErrNotFound)

		// The old snapshot no longer matches the new text.
		_, err = annotate(s, fx.page.ID, e.ID, 10, 13, "fox")
		assert.ErrorIs(t, err, ErrStaleSnapshot)
	})
}

func TestStore_ListPagesByOrder(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		fx := seed(t, s)
		now := time.Now().UTC()
		require.NoError(t, s.CreatePage(ctx, models.Page{ID: NewID(), DocumentID: fx.page.DocumentID, Order: 5, CreatedAt: now, UpdatedAt: now}))
		require.NoError(t, s.CreatePage(ctx, models.Page{ID: NewID(), DocumentID: fx.page.DocumentID, Order: 3, CreatedAt: now, UpdatedAt: now}))

		pages, err := s.ListPages(ctx, fx.page.DocumentID)
		require.NoError(t, err)
		require.Len(t, pages, 3)
		assert.Equal(t, []int{1, 3, 5}, []int{pages[0].Order, pages[1].Order, pages[2].Order})

		err = s.CreatePage(ctx, models.Page{ID: NewID(), DocumentID: "missing"})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "entitext.db")

	s, err := NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	fx := seed(t, s)
	e := saveEntity(t, s, &fx.person, "Ada Lovelace")
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	got, err := s.GetEntity(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", got.DisplayName())

	et, err := s.GetEntityType(ctx, fx.person.ID)
	require.NoError(t, err)
	assert.True(t, et.IsActive)
	assert.Equal(t, []string{"display_name", "born"}, et.Schema.Names())
}

func TestNewID_IsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewID()
		require.False(t, seen[id])
		seen[id] = true
	}
}
