package redis

import "github.com/redis/go-redis/v9"

// tokenBucketScript runs the whole token bucket step atomically inside Redis, so
// concurrent requests from any number of processes never interleave on the same bucket.
//
// KEYS:
// - KEYS[1]: bucket hash (ex: "auth_login:login:ip:192.168.1.1"), fields "tokens" and "last_refill"
//
// ARGV:
// - ARGV[1]: capacity - maximum tokens
// - ARGV[2]: refill_rate - tokens per second
// - ARGV[3]: now - unix seconds with fraction
// - ARGV[4]: cost - tokens requested
// - ARGV[5]: ttl - expiry in whole seconds
//
// Return: [allowed, tokens_left, reset_at]
// - allowed: 1 or 0
// - tokens_left, reset_at: strings, Redis truncates Lua numbers to integers otherwise
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

-- A missing bucket is a full bucket
local state = redis.call('HMGET', key, 'tokens', 'last_refill')
local tokens = tonumber(state[1]) or capacity
local last_refill = tonumber(state[2]) or now

local elapsed = now - last_refill
if elapsed > 0 then
    tokens = tokens + elapsed * refill_rate
    last_refill = now
end

-- Keep 0 <= tokens <= capacity even if the capacity was lowered since the last write
if tokens > capacity then
    tokens = capacity
end
if tokens < 0 then
    tokens = 0
end

local allowed = 0
if tokens >= cost then
    tokens = tokens - cost
    allowed = 1
end

local reset_at = now
if tokens < 1 then
    reset_at = now + (1 - tokens) / refill_rate
end

redis.call('HSET', key, 'tokens', tostring(tokens), 'last_refill', tostring(last_refill))
redis.call('EXPIRE', key, ttl)

return {allowed, tostring(tokens), tostring(reset_at)}
`)
