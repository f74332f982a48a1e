package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/go-redis/redis/v8"
)

// Registry tracks live tasks by id.
type Registry interface {
	// Add registers t. It fails with ErrDuplicateTask when the id is taken.
	Add(ctx context.Context, t *Task) error
	// Get returns the task registered under id or ErrTaskNotFound.
	Get(ctx context.Context, id string) (*Task, error)
	// Remove unregisters t. A different task registered under the same id
	// is left alone.
	Remove(ctx context.Context, t *Task) error
	// List returns the registered tasks ordered by id.
	List(ctx context.Context) ([]*Task, error)
	// Load returns the durable descriptors known to the registry.
	Load(ctx context.Context) ([]Descriptor, error)
	// Purge forgets a durable descriptor that has no live task.
	Purge(ctx context.Context, id string) error
}

// MemoryRegistry keeps tasks in process memory only.
type MemoryRegistry struct {
	mu    sync.Mutex
	tasks map[string]*Task
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{tasks: make(map[string]*Task)}
}

func (r *MemoryRegistry) Add(_ context.Context, t *Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[t.TaskID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, t.TaskID)
	}
	r.tasks[t.TaskID] = t
	return nil
}

func (r *MemoryRegistry) Get(_ context.Context, id string) (*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return t, nil
}

func (r *MemoryRegistry) Remove(_ context.Context, t *Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.tasks[t.TaskID]; !ok || cur != t {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, t.TaskID)
	}
	delete(r.tasks, t.TaskID)
	return nil
}

func (r *MemoryRegistry) List(_ context.Context) ([]*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tasks := make([]*Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].TaskID < tasks[j].TaskID })
	return tasks, nil
}

// Load returns nothing: memory tasks do not survive the process.
func (r *MemoryRegistry) Load(context.Context) ([]Descriptor, error) {
	return nil, nil
}

func (r *MemoryRegistry) Purge(context.Context, string) error {
	return nil
}

// DefaultRedisKey is the hash holding task descriptors.
const DefaultRedisKey = "hitrun:tasks"

// RedisRegistry keeps live handles in process and mirrors each task's
// descriptor into a Redis hash keyed by task id.
type RedisRegistry struct {
	mem    *MemoryRegistry
	client *redis.Client
	key    string
}

// NewRedisRegistry pings the server before returning.
func NewRedisRegistry(ctx context.Context, client *redis.Client, key string) (*RedisRegistry, error) {
	if key == "" {
		key = DefaultRedisKey
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return &RedisRegistry{mem: NewMemoryRegistry(), client: client, key: key}, nil
}

func (r *RedisRegistry) Add(ctx context.Context, t *Task) error {
	if err := r.mem.Add(ctx, t); err != nil {
		return err
	}
	data, err := json.Marshal(t.Descriptor)
	if err != nil {
		_ = r.mem.Remove(ctx, t)
		return fmt.Errorf("encoding task %s: %w", t.TaskID, err)
	}
	if err := r.client.HSet(ctx, r.key, t.TaskID, data).Err(); err != nil {
		_ = r.mem.Remove(ctx, t)
		return fmt.Errorf("storing task %s: %w", t.TaskID, err)
	}
	return nil
}

func (r *RedisRegistry) Get(ctx context.Context, id string) (*Task, error) {
	return r.mem.Get(ctx, id)
}

func (r *RedisRegistry) Remove(ctx context.Context, t *Task) error {
	if err := r.mem.Remove(ctx, t); err != nil {
		return err
	}
	return r.Purge(ctx, t.TaskID)
}

func (r *RedisRegistry) List(ctx context.Context) ([]*Task, error) {
	return r.mem.List(ctx)
}

func (r *RedisRegistry) Load(ctx context.Context) ([]Descriptor, error) {
	raw, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("loading tasks: %w", err)
	}

	descriptors := make([]Descriptor, 0, len(raw))
	for id, data := range raw {
		var d Descriptor
		if err := json.Unmarshal([]byte(data), &d); err != nil {
			return nil, fmt.Errorf("decoding task %s: %w", id, err)
		}
		descriptors = append(descriptors, d)
	}
	sort.Slice(descriptors, func(i, j int) bool { return descriptors[i].TaskID < descriptors[j].TaskID })
	return descriptors, nil
}

func (r *RedisRegistry) Purge(ctx context.Context, id string) error {
	if err := r.client.HDel(ctx, r.key, id).Err(); err != nil {
		return fmt.Errorf("deleting task %s: %w", id, err)
	}
	return nil
}
