package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Ghulam-Bahoo/Control-of-IPoWDM-sliced-Networks/internal/coreerrors"
	"github.com/Ghulam-Bahoo/Control-of-IPoWDM-sliced-Networks/internal/model"
)

// RedisStore implements Store against the key-value schema of spec.md §6.
// Cross-key atomicity (interface CAS, all-or-nothing slot allocation) is
// done with small Lua scripts rather than client-side WATCH/MULTI loops,
// since the scripts are short and this avoids optimistic-lock retries under
// contention.
type RedisStore struct {
	rdb *redis.Client

	allocateInterfaceScript *redis.Script
	allocateSlotsScript     *redis.Script
	releaseSlotsScript      *redis.Script
}

// NewRedisStore dials host:port with the given password/db and returns a
// Store. The connection itself is lazy (go-redis dials on first command);
// callers should follow with HealthCheck before relying on it.
func NewRedisStore(host string, port int, password string, db int, dialTimeout time.Duration) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%d", host, port),
		Password:    password,
		DB:          db,
		DialTimeout: dialTimeout,
	})

	return &RedisStore{
		rdb: rdb,

		allocateInterfaceScript: redis.NewScript(`
			local key = KEYS[1]
			local conn_id = ARGV[1]
			local allocated_at = ARGV[2]
			local status = redis.call('HGET', key, 'status')
			if status and status ~= 'AVAILABLE' then
				return 0
			end
			redis.call('HSET', key, 'status', 'OCCUPIED', 'current_connection', conn_id, 'allocated_at', allocated_at)
			return 1
		`),

		allocateSlotsScript: redis.NewScript(`
			local free_key = KEYS[1]
			local occ_key = KEYS[2]
			local conn_id = ARGV[1]
			local n = tonumber(ARGV[2])
			for i = 1, n do
				if redis.call('SISMEMBER', free_key, ARGV[2 + i]) == 0 then
					return 0
				end
			end
			for i = 1, n do
				redis.call('SREM', free_key, ARGV[2 + i])
			end
			redis.call('HSET', occ_key, conn_id, ARGV[#ARGV])
			return 1
		`),

		releaseSlotsScript: redis.NewScript(`
			local free_key = KEYS[1]
			local occ_key = KEYS[2]
			local conn_id = ARGV[1]
			local held = redis.call('HGET', occ_key, conn_id)
			if not held then
				return 1
			end
			redis.call('HDEL', occ_key, conn_id)
			local ok, slots = pcall(cjson.decode, held)
			if ok then
				for _, idx in ipairs(slots) do
					redis.call('SADD', free_key, idx)
				end
			end
			return 1
		`),
	}
}

func popKey(id string) string { return "pop:" + id }
func linkKey(id string) string { return "link:" + id }
func slotsKey(linkID string) string { return "slots:" + linkID }
func occupiedKey(linkID string) string { return "occupied:" + linkID }
func ifaceKey(pop, router, name string) string {
	return "interface:" + pop + ":" + router + ":" + name
}
func connKey(id string) string { return "connection:" + id }

func (s *RedisStore) LoadTopology(ctx context.Context) ([]model.POP, []model.NetworkLink, error) {
	popIDs, err := s.rdb.SMembers(ctx, "pops").Result()
	if err != nil {
		return nil, nil, coreerrors.Wrap(coreerrors.StoreError, "LoadTopology", err)
	}
	sort.Strings(popIDs)

	pops := make([]model.POP, 0, len(popIDs))
	for _, id := range popIDs {
		h, err := s.rdb.HGetAll(ctx, popKey(id)).Result()
		if err != nil {
			return nil, nil, coreerrors.Wrap(coreerrors.StoreError, "LoadTopology", err)
		}
		var routers, ifaces []string
		_ = json.Unmarshal([]byte(h["routers"]), &routers)
		_ = json.Unmarshal([]byte(h["interfaces"]), &ifaces)
		pops = append(pops, model.POP{
			ID:         id,
			Name:       h["name"],
			Location:   h["location"],
			RouterIDs:  routers,
			Interfaces: ifaces,
		})
	}

	linkIDs, err := s.rdb.SMembers(ctx, "links").Result()
	if err != nil {
		return nil, nil, coreerrors.Wrap(coreerrors.StoreError, "LoadTopology", err)
	}
	sort.Strings(linkIDs)

	links := make([]model.NetworkLink, 0, len(linkIDs))
	for _, id := range linkIDs {
		h, err := s.rdb.HGetAll(ctx, linkKey(id)).Result()
		if err != nil {
			return nil, nil, coreerrors.Wrap(coreerrors.StoreError, "LoadTopology", err)
		}
		distance, _ := strconv.ParseFloat(h["distance_km"], 64)
		total, _ := strconv.Atoi(h["total_channels"])
		if total == 0 {
			total = 320
		}

		free, err := s.rdb.SMembers(ctx, slotsKey(id)).Result()
		if err != nil {
			return nil, nil, coreerrors.Wrap(coreerrors.StoreError, "LoadTopology", err)
		}
		freeSet := make(map[int]struct{}, len(free))
		if len(free) == 0 {
			// default to {0...total_slots-1} when absent, per spec.md §4.1.
			exists, err := s.rdb.Exists(ctx, slotsKey(id)).Result()
			if err != nil {
				return nil, nil, coreerrors.Wrap(coreerrors.StoreError, "LoadTopology", err)
			}
			if exists == 0 {
				for i := 0; i < total; i++ {
					freeSet[i] = struct{}{}
				}
			}
		} else {
			for _, f := range free {
				idx, err := strconv.Atoi(f)
				if err == nil {
					freeSet[idx] = struct{}{}
				}
			}
		}

		occ, err := s.rdb.HGetAll(ctx, occupiedKey(id)).Result()
		if err != nil {
			return nil, nil, coreerrors.Wrap(coreerrors.StoreError, "LoadTopology", err)
		}
		occupiedBy := make(map[string][]int, len(occ))
		for connID, raw := range occ {
			var slots []int
			_ = json.Unmarshal([]byte(raw), &slots)
			occupiedBy[connID] = slots
		}

		links = append(links, model.NetworkLink{
			ID:         id,
			PopA:       h["pop_a"],
			PopB:       h["pop_b"],
			DistanceKM: distance,
			TotalSlots: total,
			FreeSlots:  freeSet,
			OccupiedBy: occupiedBy,
		})
	}

	return pops, links, nil
}

func (s *RedisStore) AvailableInterfaces(ctx context.Context, pop, router string) ([]string, error) {
	pattern := "interface:" + pop + ":" + router + ":*"
	var names []string
	iter := s.rdb.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		status, err := s.rdb.HGet(ctx, key, "status").Result()
		if err != nil && err != redis.Nil {
			return nil, coreerrors.Wrap(coreerrors.StoreError, "AvailableInterfaces", err)
		}
		if status == string(model.InterfaceAvailable) || status == "" {
			parts := key[len("interface:")+len(pop)+1+len(router)+1:]
			names = append(names, parts)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, coreerrors.Wrap(coreerrors.StoreError, "AvailableInterfaces", err)
	}
	sort.Strings(names)
	return names, nil
}

func (s *RedisStore) AllocateInterface(ctx context.Context, pop, router, name, connID string) (bool, error) {
	key := ifaceKey(pop, router, name)
	res, err := s.allocateInterfaceScript.Run(ctx, s.rdb, []string{key}, connID, time.Now().UTC().Format(time.RFC3339)).Int()
	if err != nil {
		return false, coreerrors.Wrap(coreerrors.StoreError, "AllocateInterface", err)
	}
	return res == 1, nil
}

func (s *RedisStore) ReleaseInterface(ctx context.Context, pop, router, name string) (bool, error) {
	key := ifaceKey(pop, router, name)
	err := s.rdb.HSet(ctx, key, "status", string(model.InterfaceAvailable), "current_connection", "", "released_at", time.Now().UTC().Format(time.RFC3339)).Err()
	if err != nil {
		return false, coreerrors.Wrap(coreerrors.StoreError, "ReleaseInterface", err)
	}
	return true, nil
}

func (s *RedisStore) AllocateSpectrumSlots(ctx context.Context, linkID, connID string, slots []int) (bool, error) {
	args := make([]interface{}, 0, len(slots)+2)
	args = append(args, connID, len(slots))
	for _, idx := range slots {
		args = append(args, idx)
	}
	heldJSON, err := json.Marshal(slots)
	if err != nil {
		return false, coreerrors.Wrap(coreerrors.Internal, "AllocateSpectrumSlots", err)
	}
	args = append(args, string(heldJSON))

	res, err := s.allocateSlotsScript.Run(ctx, s.rdb, []string{slotsKey(linkID), occupiedKey(linkID)}, args...).Int()
	if err != nil {
		return false, coreerrors.Wrap(coreerrors.StoreError, "AllocateSpectrumSlots", err)
	}
	return res == 1, nil
}

func (s *RedisStore) ReleaseSpectrumSlots(ctx context.Context, linkID, connID string) (bool, error) {
	_, err := s.releaseSlotsScript.Run(ctx, s.rdb, []string{slotsKey(linkID), occupiedKey(linkID)}, connID).Result()
	if err != nil {
		return false, coreerrors.Wrap(coreerrors.StoreError, "ReleaseSpectrumSlots", err)
	}
	return true, nil
}

func (s *RedisStore) GetAvailableSlots(ctx context.Context, linkID string) ([]int, error) {
	raw, err := s.rdb.SMembers(ctx, slotsKey(linkID)).Result()
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.StoreError, "GetAvailableSlots", err)
	}
	out := make([]int, 0, len(raw))
	for _, r := range raw {
		idx, err := strconv.Atoi(r)
		if err == nil {
			out = append(out, idx)
		}
	}
	sort.Ints(out)
	return out, nil
}

func (s *RedisStore) CreateConnectionRecord(ctx context.Context, conn *model.Connection) error {
	pathJSON, _ := json.Marshal(conn.PathSegments)
	detailsJSON, _ := json.Marshal(conn.Metadata)

	pipe := s.rdb.TxPipeline()
	pipe.SAdd(ctx, "connections", conn.ID)
	pipe.HSet(ctx, connKey(conn.ID), map[string]interface{}{
		"status":               string(conn.Status),
		"source_pop":           conn.SourcePop,
		"destination_pop":      conn.DestPop,
		"source_interface":     conn.SourceInterface,
		"destination_interface": conn.DestInterface,
		"bandwidth_gbps":       conn.BandwidthGbps,
		"modulation":           conn.Modulation,
		"estimated_osnr":       conn.EstimatedOSNRdB,
		"path_links":           string(pathJSON),
		"details":              string(detailsJSON),
		"created_at":           conn.SetupTimestamp.UTC().Format(time.RFC3339),
		"updated_at":           time.Now().UTC().Format(time.RFC3339),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return coreerrors.Wrap(coreerrors.StoreError, "CreateConnectionRecord", err)
	}
	return nil
}

func (s *RedisStore) UpdateStatus(ctx context.Context, connID string, status model.ConnectionStatus) error {
	exists, err := s.rdb.Exists(ctx, connKey(connID)).Result()
	if err != nil {
		return coreerrors.Wrap(coreerrors.StoreError, "UpdateStatus", err)
	}
	if exists == 0 {
		return coreerrors.New(coreerrors.NotFound, "UpdateStatus")
	}
	err = s.rdb.HSet(ctx, connKey(connID), "status", string(status), "updated_at", time.Now().UTC().Format(time.RFC3339)).Err()
	if err != nil {
		return coreerrors.Wrap(coreerrors.StoreError, "UpdateStatus", err)
	}
	return nil
}

func (s *RedisStore) GetConnectionRecord(ctx context.Context, connID string) (*model.Connection, error) {
	h, err := s.rdb.HGetAll(ctx, connKey(connID)).Result()
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.StoreError, "GetConnectionRecord", err)
	}
	if len(h) == 0 {
		return nil, coreerrors.New(coreerrors.NotFound, "GetConnectionRecord")
	}
	return hashToConnection(connID, h)
}

func (s *RedisStore) ListConnections(ctx context.Context) ([]*model.Connection, error) {
	ids, err := s.rdb.SMembers(ctx, "connections").Result()
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.StoreError, "ListConnections", err)
	}
	sort.Strings(ids)

	out := make([]*model.Connection, 0, len(ids))
	for _, id := range ids {
		h, err := s.rdb.HGetAll(ctx, connKey(id)).Result()
		if err != nil {
			return nil, coreerrors.Wrap(coreerrors.StoreError, "ListConnections", err)
		}
		if len(h) == 0 {
			continue
		}
		c, err := hashToConnection(id, h)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *RedisStore) DeleteRecord(ctx context.Context, connID string) error {
	pipe := s.rdb.TxPipeline()
	pipe.SRem(ctx, "connections", connID)
	pipe.Del(ctx, connKey(connID))
	if _, err := pipe.Exec(ctx); err != nil {
		return coreerrors.Wrap(coreerrors.StoreError, "DeleteRecord", err)
	}
	return nil
}

func (s *RedisStore) HealthCheck(ctx context.Context) bool {
	return s.rdb.Ping(ctx).Err() == nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func hashToConnection(id string, h map[string]string) (*model.Connection, error) {
	bandwidth, _ := strconv.ParseFloat(h["bandwidth_gbps"], 64)
	osnr, _ := strconv.ParseFloat(h["estimated_osnr"], 64)
	created, _ := time.Parse(time.RFC3339, h["created_at"])

	var segments []model.PathSegment
	_ = json.Unmarshal([]byte(h["path_links"]), &segments)
	var metadata map[string]string
	_ = json.Unmarshal([]byte(h["details"]), &metadata)

	return &model.Connection{
		ID:              id,
		SourcePop:       h["source_pop"],
		DestPop:         h["destination_pop"],
		SourceInterface: h["source_interface"],
		DestInterface:   h["destination_interface"],
		PathSegments:    segments,
		BandwidthGbps:   bandwidth,
		Modulation:      h["modulation"],
		Status:          model.ConnectionStatus(h["status"]),
		SetupTimestamp:  created,
		EstimatedOSNRdB: osnr,
		Metadata:        metadata,
	}, nil
}
