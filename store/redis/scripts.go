package redis

import goredis "github.com/redis/go-redis/v9"

// Every lock change runs as one Lua script, which Redis executes
// atomically. The scripts touch item hashes derived from ARGV, so the
// store requires a single Redis instance or a hash-tagged keyspace.

// acquireScript claims KEYS[1] when it is pending and its lock is absent
// or no newer than the stale cutoff. Returns 1 on success, 0 on
// contention and -1 when the item does not exist.
//
// ARGV: worker, now (RFC3339), now (µs), stale cutoff (µs), id.
var acquireScript = goredis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
    return -1
end
if redis.call("HGET", KEYS[1], "status") ~= "pending" then
    return 0
end
local at = redis.call("HGET", KEYS[1], "locked_at_us")
if at and at ~= "" and tonumber(at) > tonumber(ARGV[4]) then
    return 0
end
redis.call("HSET", KEYS[1],
    "locked_by", ARGV[1], "locked_at", ARGV[2], "locked_at_us", ARGV[3], "updated_at", ARGV[2])
redis.call("ZADD", KEYS[2], ARGV[3], ARGV[5])
return 1
`)

// releaseScript clears the lock on KEYS[1] only if ARGV[1] holds it.
//
// ARGV: worker, now (RFC3339), id.
var releaseScript = goredis.NewScript(`
if redis.call("HGET", KEYS[1], "locked_by") ~= ARGV[1] then
    return 0
end
redis.call("HDEL", KEYS[1], "locked_by", "locked_at", "locked_at_us")
redis.call("HSET", KEYS[1], "updated_at", ARGV[2])
redis.call("ZREM", KEYS[2], ARGV[3])
return 1
`)

// sweepScript clears every lock in the KEYS[1] index strictly older than
// the cutoff and returns how many it cleared.
//
// ARGV: stale cutoff (µs), now (RFC3339), item key prefix.
var sweepScript = goredis.NewScript(`
local ids = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", "(" .. ARGV[1])
local n = 0
for _, id in ipairs(ids) do
    local key = ARGV[3] .. id
    redis.call("ZREM", KEYS[1], id)
    if redis.call("EXISTS", key) == 1 then
        redis.call("HDEL", key, "locked_by", "locked_at", "locked_at_us")
        redis.call("HSET", key, "updated_at", ARGV[2])
        n = n + 1
    end
end
return n
`)

// transitionScript moves KEYS[1] to a new status if ARGV[1] holds its lock
// and its current status is one of the comma separated sources. Returns 1
// on success, 0 when the guard fails and -1 when the item does not exist.
//
// Leaving pending drops the item from the KEYS[3] candidate and KEYS[4]
// scheduled indexes.
//
// ARGV: worker, id, sources, target, status index prefix, clear lock
// ("1"/"0"), increment attempts ("1"/"0"), then field/value pairs to set.
var transitionScript = goredis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
    return -1
end
if redis.call("HGET", KEYS[1], "locked_by") ~= ARGV[1] then
    return 0
end
local from = redis.call("HGET", KEYS[1], "status")
local allowed = false
for s in string.gmatch(ARGV[3], "[^,]+") do
    if s == from then
        allowed = true
    end
end
if not allowed then
    return 0
end
redis.call("HSET", KEYS[1], "status", ARGV[4])
for i = 8, #ARGV, 2 do
    redis.call("HSET", KEYS[1], ARGV[i], ARGV[i + 1])
end
if ARGV[7] == "1" then
    redis.call("HINCRBY", KEYS[1], "attempts", 1)
end
if ARGV[6] == "1" then
    redis.call("HDEL", KEYS[1], "locked_by", "locked_at", "locked_at_us")
    redis.call("ZREM", KEYS[2], ARGV[2])
end
if from == "pending" and ARGV[4] ~= "pending" then
    local member = redis.call("HGET", KEYS[1], "candidate")
    if member then
        redis.call("ZREM", KEYS[3], member)
    end
    redis.call("ZREM", KEYS[4], ARGV[2])
end
local score = redis.call("HGET", KEYS[1], "created_at_us")
redis.call("ZREM", ARGV[5] .. from, ARGV[2])
redis.call("ZADD", ARGV[5] .. ARGV[4], score, ARGV[2])
return 1
`)

// promoteScript moves every KEYS[1] scheduled entry due at ARGV[1] into
// the KEYS[2] candidate index and returns how many it moved. Entries whose
// item left pending are dropped.
//
// ARGV: now (µs), item key prefix.
var promoteScript = goredis.NewScript(`
local ids = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
local n = 0
for _, id in ipairs(ids) do
    local key = ARGV[2] .. id
    redis.call("ZREM", KEYS[1], id)
    if redis.call("HGET", key, "status") == "pending" then
        local member = redis.call("HGET", key, "candidate")
        local priority = tonumber(redis.call("HGET", key, "priority")) or 0
        if member then
            redis.call("ZADD", KEYS[2], -priority, member)
            n = n + 1
        end
    end
end
return n
`)
