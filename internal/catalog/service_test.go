package catalog_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/entitext/internal/catalog"
	"github.com/ajitpratap0/entitext/internal/models"
	"github.com/ajitpratap0/entitext/internal/schema"
	"github.com/ajitpratap0/entitext/internal/store"
)

func newTestService(t *testing.T) (*catalog.Service, store.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	st := store.NewMemoryStore()
	return catalog.NewService(st, nil, logger, 0), st
}

func ptr[T any](v T) *T { return &v }

func personSchema() schema.Schema {
	return schema.Schema{
		{"name": "display_name", "label": "Name", "type": "text", "required": true},
		{"name": "age", "label": "Age", "type": "number", "required": true},
		{"name": "alive", "label": "Alive", "type": "bool"},
	}
}

func newProject(t *testing.T, svc *catalog.Service) *models.Project {
	t.Helper()
	p, err := svc.CreateProject(context.Background(), "ada", "Letters", "")
	require.NoError(t, err)
	return p
}

func newPersonType(t *testing.T, svc *catalog.Service, projectID string) *models.EntityType {
	t.Helper()
	et, err := svc.CreateEntityType(context.Background(), projectID, catalog.EntityTypeInput{
		Name:   ptr("Person"),
		Schema: personSchema(),
	})
	require.NoError(t, err)
	return et
}

func TestCreateEntityType_Defaults(t *testing.T) {
	svc, _ := newTestService(t)
	p := newProject(t, svc)

	et := newPersonType(t, svc, p.ID)
	assert.Equal(t, models.DefaultEntityTypeColor, et.Color)
	assert.True(t, et.IsActive)
	assert.Equal(t, p.ID, et.ProjectID)
}

func TestCreateEntityType_RejectsBadSchema(t *testing.T) {
	svc, _ := newTestService(t)
	p := newProject(t, svc)
	ctx := context.Background()

	_, err := svc.CreateEntityType(ctx, p.ID, catalog.EntityTypeInput{
		Name:   ptr("Place"),
		Schema: schema.Schema{{"name": "title", "label": "Title", "type": "text"}},
	})
	var defErr *schema.DefinitionError
	require.ErrorAs(t, err, &defErr)

	_, err = svc.CreateEntityType(ctx, p.ID, catalog.EntityTypeInput{Name: ptr(" "), Schema: personSchema()})
	assert.ErrorIs(t, err, catalog.ErrInvalid)

	_, err = svc.CreateEntityType(ctx, p.ID, catalog.EntityTypeInput{Name: ptr("Place")})
	assert.ErrorAs(t, err, &defErr, "missing schema")

	types, err := svc.AllEntityTypes(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, types, "rejected writes persist nothing")
}

func TestCreateEntityType_NameUniqueWithinProject(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	p1 := newProject(t, svc)
	p2 := newProject(t, svc)

	newPersonType(t, svc, p1.ID)
	_, err := svc.CreateEntityType(ctx, p1.ID, catalog.EntityTypeInput{Name: ptr("Person"), Schema: personSchema()})
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = svc.CreateEntityType(ctx, p2.ID, catalog.EntityTypeInput{Name: ptr("Person"), Schema: personSchema()})
	assert.NoError(t, err)
}

func TestCreateEntityType_ReferenceTargetMustExist(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	p := newProject(t, svc)
	person := newPersonType(t, svc, p.ID)

	letter := schema.Schema{
		{"name": "display_name", "label": "Title", "type": "text"},
		{"name": "author", "label": "Author", "type": "reference", "target_entity_type_id": person.ID},
	}
	_, err := svc.CreateEntityType(ctx, p.ID, catalog.EntityTypeInput{Name: ptr("Letter"), Schema: letter})
	require.NoError(t, err)

	letter[1]["target_entity_type_id"] = store.NewID()
	_, err = svc.CreateEntityType(ctx, p.ID, catalog.EntityTypeInput{Name: ptr("Memo"), Schema: letter})
	var defErr *schema.DefinitionError
	assert.ErrorAs(t, err, &defErr)
}

func TestListEntityTypes(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	p := newProject(t, svc)
	person := newPersonType(t, svc, p.ID)

	_, err := svc.CreateEntityType(ctx, p.ID, catalog.EntityTypeInput{
		Name: ptr("Retired"), Schema: personSchema(), IsActive: ptr(false),
	})
	require.NoError(t, err)

	got, err := svc.ListEntityTypes(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, person.ID, got[0].ID)
	assert.Equal(t, "Person", got[0].Name)

	_, err = svc.ListEntityTypes(ctx, store.NewID())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateEntityType_DoesNotRevalidateEntities(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	p := newProject(t, svc)
	et := newPersonType(t, svc, p.ID)

	e, err := svc.CreateEntity(ctx, p.ID, et.ID, map[string]any{"display_name": "Ada", "age": 36.0})
	require.NoError(t, err)

	stricter := append(personSchema(), schema.Definition{"name": "born", "label": "Born", "type": "date", "required": true})
	updated, err := svc.UpdateEntityType(ctx, et.ID, catalog.EntityTypeInput{Schema: stricter, Color: ptr("#00ff00")})
	require.NoError(t, err)
	assert.Equal(t, "#00ff00", updated.Color)
	assert.Equal(t, "Person", updated.Name)

	got, err := svc.GetEntity(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.DisplayName)

	_, err = svc.UpdateEntity(ctx, e.ID, map[string]any{"display_name": "Ada", "age": 36.0})
	var fieldErrs schema.FieldErrors
	require.ErrorAs(t, err, &fieldErrs, "the next write sees the new schema")
	assert.Equal(t, map[string]string{"born": "this field is required"}, fieldErrs.Map())
}

func TestCreateEntity(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	p := newProject(t, svc)
	et := newPersonType(t, svc, p.ID)

	sum, err := svc.CreateEntity(ctx, p.ID, et.ID, map[string]any{"display_name": "Ada", "age": 36.0, "alive": "no"})
	require.NoError(t, err)
	assert.Equal(t, "Ada", sum.DisplayName)
	assert.Equal(t, et.ID, sum.EntityTypeID)
	assert.Equal(t, "Person", sum.EntityTypeName)
	assert.Equal(t, models.DefaultEntityTypeColor, sum.EntityTypeColor)
}

func TestCreateEntity_ValidationCollectsEveryField(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	p := newProject(t, svc)
	et := newPersonType(t, svc, p.ID)

	_, err := svc.CreateEntity(ctx, p.ID, et.ID, map[string]any{"age": "old", "alive": "maybe"})
	var fieldErrs schema.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	got := fieldErrs.Map()
	assert.Len(t, got, 3)
	assert.Contains(t, got, "display_name")
	assert.Contains(t, got, "age")
	assert.Contains(t, got, "alive")
}

func TestCreateEntity_TypeMustBelongToProject(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	p1 := newProject(t, svc)
	p2 := newProject(t, svc)
	et := newPersonType(t, svc, p1.ID)

	_, err := svc.CreateEntity(ctx, p2.ID, et.ID, map[string]any{"display_name": "Ada", "age": 1.0})
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = svc.CreateEntity(ctx, p1.ID, store.NewID(), map[string]any{"display_name": "Ada"})
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = svc.CreateEntity(ctx, p1.ID, "", nil)
	assert.ErrorIs(t, err, catalog.ErrInvalid)
}

func TestCreateEntity_ReferenceField(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	p := newProject(t, svc)
	person := newPersonType(t, svc, p.ID)
	letter, err := svc.CreateEntityType(ctx, p.ID, catalog.EntityTypeInput{
		Name: ptr("Letter"),
		Schema: schema.Schema{
			{"name": "display_name", "label": "Title", "type": "text"},
			{"name": "author", "label": "Author", "type": "reference", "target_entity_type_id": person.ID},
		},
	})
	require.NoError(t, err)

	ada, err := svc.CreateEntity(ctx, p.ID, person.ID, map[string]any{"display_name": "Ada", "age": 36.0})
	require.NoError(t, err)

	_, err = svc.CreateEntity(ctx, p.ID, letter.ID, map[string]any{"display_name": "Note G", "author": ada.ID})
	require.NoError(t, err)

	_, err = svc.CreateEntity(ctx, p.ID, letter.ID, map[string]any{"display_name": "Note H", "author": store.NewID()})
	var fieldErrs schema.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Contains(t, fieldErrs.Map(), "author")

	_, err = svc.CreateEntity(ctx, p.ID, letter.ID, map[string]any{"display_name": "Note I", "author": 7.0})
	require.ErrorAs(t, err, &fieldErrs, "integer ids are not references")
}

func TestDelete_ProtectsReferencedRecords(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	p := newProject(t, svc)
	person := newPersonType(t, svc, p.ID)
	letter, err := svc.CreateEntityType(ctx, p.ID, catalog.EntityTypeInput{
		Name: ptr("Letter"),
		Schema: schema.Schema{
			{"name": "display_name", "label": "Title", "type": "text"},
			{"name": "author", "label": "Author", "type": "reference", "target_entity_type_id": person.ID},
		},
	})
	require.NoError(t, err)

	ada, err := svc.CreateEntity(ctx, p.ID, person.ID, map[string]any{"display_name": "Ada", "age": 36.0})
	require.NoError(t, err)
	metadata := map[string]any{"display_name": "Note G", "author": ada.ID}
	note, err := svc.CreateEntity(ctx, p.ID, letter.ID, metadata)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.DeleteEntity(ctx, ada.ID), store.ErrProtected)
	_, err = svc.UpdateEntity(ctx, note.ID, metadata)
	require.NoError(t, err, "the referencing entity stays saveable")

	place, err := svc.CreateEntityType(ctx, p.ID, catalog.EntityTypeInput{
		Name:   ptr("Place"),
		Schema: schema.Schema{{"name": "display_name", "label": "Name", "type": "text"}},
	})
	require.NoError(t, err)
	trip, err := svc.CreateEntityType(ctx, p.ID, catalog.EntityTypeInput{
		Name: ptr("Trip"),
		Schema: schema.Schema{
			{"name": "to", "label": "To", "type": "reference", "target_entity_type_id": place.ID},
		},
	})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.DeleteEntityType(ctx, place.ID), store.ErrProtected)
	_, err = svc.UpdateEntityType(ctx, trip.ID, catalog.EntityTypeInput{Color: ptr("#123456")})
	require.NoError(t, err, "the referencing type stays editable")
}

func TestCreateEntity_CorruptStoredSchema(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	p := newProject(t, svc)

	now := time.Now().UTC()
	broken := models.EntityType{
		ID: store.NewID(), ProjectID: p.ID, Name: "Broken", IsActive: true, CreatedAt: now, UpdatedAt: now,
		Schema: schema.Schema{
			{"name": "display_name", "label": "Name", "type": "text"},
			{"name": "shape", "label": "Shape", "type": "polygon"},
		},
	}
	require.NoError(t, st.CreateEntityType(ctx, broken))

	_, err := svc.CreateEntity(ctx, p.ID, broken.ID, map[string]any{"display_name": "x"})
	assert.ErrorIs(t, err, catalog.ErrCorruptSchema)
	assert.ErrorIs(t, err, schema.ErrUnknownFieldType)
}

func TestSearchEntities(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	p := newProject(t, svc)
	et := newPersonType(t, svc, p.ID)

	for i := 0; i < 25; i++ {
		_, err := svc.CreateEntity(ctx, p.ID, et.ID, map[string]any{"display_name": fmt.Sprintf("Smith %02d", i), "age": float64(i)})
		require.NoError(t, err)
	}
	_, err := svc.CreateEntity(ctx, p.ID, et.ID, map[string]any{"display_name": "Ada", "age": 1.0})
	require.NoError(t, err)

	got, err := svc.SearchEntities(ctx, p.ID, "smith", "")
	require.NoError(t, err)
	assert.Len(t, got, catalog.MaxSearchLimit)
	assert.Equal(t, "Smith 00", got[0].DisplayName)

	got, err = svc.SearchEntities(ctx, p.ID, "  ", "")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	got, err = svc.SearchEntities(ctx, p.ID, "ada", et.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Person", got[0].EntityTypeName)

	got, err = svc.SearchEntities(ctx, p.ID, "ada", store.NewID())
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = svc.SearchEntities(ctx, store.NewID(), "ada", "")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteEntityType_ProtectedWhileEntitiesExist(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	p := newProject(t, svc)
	et := newPersonType(t, svc, p.ID)

	e, err := svc.CreateEntity(ctx, p.ID, et.ID, map[string]any{"display_name": "Ada", "age": 36.0})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.DeleteEntityType(ctx, et.ID), store.ErrProtected)
	require.NoError(t, svc.DeleteEntity(ctx, e.ID))
	require.NoError(t, svc.DeleteEntityType(ctx, et.ID))

	_, err = svc.GetEntityType(ctx, et.ID)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestProjectsAreScopedToOwner(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateProject(ctx, "ada", "Letters", "")
	require.NoError(t, err)
	_, err = svc.CreateProject(ctx, "bob", "Engines", "")
	require.NoError(t, err)

	got, err := svc.ListProjects(ctx, "ada")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Letters", got[0].Title)

	none, err := svc.ListProjects(ctx, "carol")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	_, err = svc.CreateProject(ctx, "ada", "", "")
	assert.ErrorIs(t, err, catalog.ErrInvalid)
}

func TestAddPages_AppendsAfterHighestOrder(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	p := newProject(t, svc)
	doc, err := svc.CreateDocument(ctx, p.ID, "Volume 1", "")
	require.NoError(t, err)

	_, err = svc.AddPages(ctx, doc.ID, []catalog.PageInput{{Title: "intro", Order: ptr(5)}})
	require.NoError(t, err)

	added, err := svc.AddPages(ctx, doc.ID, []catalog.PageInput{{Title: "a.txt", Text: "A"}, {Title: "b.txt", Text: "B"}})
	require.NoError(t, err)
	require.Len(t, added, 2)
	assert.Equal(t, 6, added[0].Order)
	assert.Equal(t, 7, added[1].Order)

	pages, err := svc.ListPages(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, pages, 3)
	assert.Equal(t, "intro", pages[0].Title)

	_, err = svc.AddPages(ctx, store.NewID(), []catalog.PageInput{{Title: "x"}})
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = svc.AddPages(ctx, doc.ID, nil)
	assert.ErrorIs(t, err, catalog.ErrInvalid)

	_, err = svc.CreateDocument(ctx, store.NewID(), "Orphan", "")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
