package pipeline

import (
	"context"
	"errors"
	"testing"

	"histai-go/internal/model"
	"histai-go/internal/repository"
	"histai-go/pkg/database/sqlitetest"
	"histai-go/pkg/tasks"
)

type fakeIndexer struct {
	docs    []model.PersonDocument
	deleted []uint
	err     error
}

func (f *fakeIndexer) IndexPerson(ctx context.Context, doc model.PersonDocument) error {
	if f.err != nil {
		return f.err
	}
	f.docs = append(f.docs, doc)
	return nil
}

func (f *fakeIndexer) DeletePerson(ctx context.Context, personID uint) error {
	f.deleted = append(f.deleted, personID)
	return nil
}

func newRepo(t *testing.T) repository.PersonRepository {
	t.Helper()
	db, err := sqlitetest.Open()
	if err != nil {
		t.Fatal(err)
	}
	return repository.NewPersonRepository(db)
}

func TestProcessIndexesPerson(t *testing.T) {
	repo := newRepo(t)
	p := &model.HistoricalPerson{Name: "Napoleon", Era: "19th Century"}
	if err := repo.Create(p); err != nil {
		t.Fatal(err)
	}
	idx := &fakeIndexer{}
	proc := NewProcessor(repo, idx)
	if err := proc.Process(context.Background(), tasks.PersonIndexTask{Action: tasks.ActionIndex, PersonID: p.ID}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(idx.docs) != 1 || idx.docs[0].Name != "Napoleon" || idx.docs[0].PersonID != p.ID {
		t.Fatalf("docs = %+v", idx.docs)
	}
}

func TestProcessMissingPersonIsSkipped(t *testing.T) {
	idx := &fakeIndexer{}
	if err := NewProcessor(newRepo(t), idx).Process(context.Background(), tasks.PersonIndexTask{Action: tasks.ActionIndex, PersonID: 42}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(idx.docs) != 0 {
		t.Fatal("unexpected index")
	}
}

func TestProcessIndexError(t *testing.T) {
	repo := newRepo(t)
	p := &model.HistoricalPerson{Name: "Caesar"}
	_ = repo.Create(p)
	proc := NewProcessor(repo, &fakeIndexer{err: errors.New("es down")})
	if err := proc.Process(context.Background(), tasks.PersonIndexTask{Action: tasks.ActionIndex, PersonID: p.ID}); err == nil {
		t.Fatal("expected error")
	}
}

func TestProcessDelete(t *testing.T) {
	idx := &fakeIndexer{}
	if err := NewProcessor(newRepo(t), idx).Process(context.Background(), tasks.PersonIndexTask{Action: tasks.ActionDelete, PersonID: 3}); err != nil {
		t.Fatal(err)
	}
	if len(idx.deleted) != 1 || idx.deleted[0] != 3 {
		t.Fatalf("deleted = %v", idx.deleted)
	}
}

func TestDirectPublisher(t *testing.T) {
	repo := newRepo(t)
	p := &model.HistoricalPerson{Name: "Caesar", Era: "Ancient"}
	if err := repo.Create(p); err != nil {
		t.Fatal(err)
	}
	idx := &fakeIndexer{}
	pub := NewDirectPublisher(NewProcessor(repo, idx))
	if err := pub.ProducePersonTask(context.Background(), tasks.PersonIndexTask{Action: tasks.ActionIndex, PersonID: p.ID}); err != nil {
		t.Fatalf("ProducePersonTask: %v", err)
	}
	if len(idx.docs) != 1 || idx.docs[0].Era != "Ancient" {
		t.Fatalf("docs = %+v", idx.docs)
	}

	idx.err = errors.New("es down")
	if err := pub.ProducePersonTask(context.Background(), tasks.PersonIndexTask{Action: tasks.ActionIndex, PersonID: p.ID}); err == nil {
		t.Fatal("expected indexing error")
	}
}
