package ratelimiter

// The Lua scripts below mirror the pure functions in algorithms.go exactly;
// each is loaded once and run via EVALSHA so a check-and-update is a single
// round trip against the shared cache, eliminating the races a
// GET-then-SET pair would have under concurrent requests from other gateway
// instances (§4.3).
//
// KEYS[1] is always the counter/state key. ARGV carries capacity, rate,
// and the caller's current time in milliseconds (Lua has no clock the
// gateway controls, so "now" always comes from the caller — this is also
// what keeps the boundary-case tests in algorithms_test.go exercising the
// exact same arithmetic these scripts run in production).

// tokenBucketScript implements ApplyTokenBucket. State is a hash with
// fields "tokens" and "refill" (last refill, unix millis).
const tokenBucketScript = `
local capacity = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl_ms = tonumber(ARGV[4])

local tokens = tonumber(redis.call('HGET', KEYS[1], 'tokens'))
local last = tonumber(redis.call('HGET', KEYS[1], 'refill'))

if tokens == nil then
  tokens = capacity
  last = now
end

local elapsed = (now - last) / 1000.0
tokens = math.min(capacity, tokens + elapsed * refill_rate)

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end

-- Reset reports time-to-full regardless of outcome, not just time until
-- the next single token is available.
local retry_after_ms = math.ceil((capacity - tokens) / refill_rate * 1000)

redis.call('HSET', KEYS[1], 'tokens', tokens, 'refill', now)
redis.call('PEXPIRE', KEYS[1], ttl_ms)

return {allowed, math.floor(tokens), retry_after_ms}
`

// leakyBucketScript implements ApplyLeakyBucket. State is a hash with
// fields "queue" and "leak" (last leak, unix millis).
const leakyBucketScript = `
local capacity = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl_ms = tonumber(ARGV[4])

local queue = tonumber(redis.call('HGET', KEYS[1], 'queue'))
local last = tonumber(redis.call('HGET', KEYS[1], 'leak'))

if queue == nil then
  queue = 0
  last = now
end

local elapsed = (now - last) / 1000.0
queue = math.max(0, queue - elapsed * refill_rate)

local allowed = 0
if queue < capacity then
  queue = queue + 1
  allowed = 1
end

-- Reset reports time until the queue fully drains, regardless of outcome.
local retry_after_ms = math.ceil(queue / refill_rate * 1000)

redis.call('HSET', KEYS[1], 'queue', queue, 'leak', now)
redis.call('PEXPIRE', KEYS[1], ttl_ms)

return {allowed, math.floor(capacity - queue), retry_after_ms}
`

// fixedWindowScript implements ApplyFixedWindow. KEYS[1] is the
// window-scoped counter key (the caller derives the window id from now and
// window_seconds so rollover needs no script-side branching). The counter
// is only incremented when the request is allowed, and TTL is only set on
// the first increment of a fresh window.
const fixedWindowScript = `
local capacity = tonumber(ARGV[1])
local window_end_ms = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local window_seconds = tonumber(ARGV[4])

local count = tonumber(redis.call('GET', KEYS[1]))
if count == nil then
  count = 0
end

-- Reset reports the window boundary regardless of outcome.
local retry_after_ms = math.max(0, window_end_ms - now)

local allowed = 0
if count < capacity then
  count = count + 1
  allowed = 1
  if count == 1 then
    redis.call('SET', KEYS[1], count, 'EX', window_seconds)
  else
    redis.call('SET', KEYS[1], count, 'KEEPTTL')
  end
end

return {allowed, capacity - count, retry_after_ms}
`

// slidingWindowScript implements ApplySlidingWindow. KEYS[1] is the current
// window's counter key, KEYS[2] is the previous window's (read-only, never
// incremented here).
const slidingWindowScript = `
local capacity = tonumber(ARGV[1])
local progress = tonumber(ARGV[2])
local window_end_ms = tonumber(ARGV[3])
local now = tonumber(ARGV[4])
local window_seconds = tonumber(ARGV[5])

local current = tonumber(redis.call('GET', KEYS[1]))
if current == nil then current = 0 end
local previous = tonumber(redis.call('GET', KEYS[2]))
if previous == nil then previous = 0 end

local effective = math.floor((1 - progress) * previous) + current

-- Reset reports the window boundary regardless of outcome.
local retry_after_ms = math.max(0, window_end_ms - now)

local allowed = 0
if effective < capacity then
  current = current + 1
  allowed = 1
  if current == 1 then
    redis.call('SET', KEYS[1], current, 'EX', window_seconds * 2)
  else
    redis.call('SET', KEYS[1], current, 'KEEPTTL')
  end
end

return {allowed, capacity - effective - 1, retry_after_ms}
`

// concurrencyAcquireScript implements ApplyConcurrencyAcquire.
const concurrencyAcquireScript = `
local capacity = tonumber(ARGV[1])
local ttl_ms = tonumber(ARGV[2])

local count = tonumber(redis.call('GET', KEYS[1]))
if count == nil then count = 0 end

local allowed = 0
if count < capacity then
  count = count + 1
  allowed = 1
  redis.call('SET', KEYS[1], count, 'PX', ttl_ms)
end

-- Slot-release time is unpredictable, so reset reports the worst case (the
-- lease's own TTL) regardless of outcome.
local retry_after_ms = ttl_ms

return {allowed, capacity - count, retry_after_ms}
`

// concurrencyReleaseScript implements ApplyConcurrencyRelease, clamped so a
// release with no matching acquire (e.g. after a crash mid-request) never
// drives the counter negative.
const concurrencyReleaseScript = `
local count = tonumber(redis.call('GET', KEYS[1]))
if count == nil or count <= 0 then
  redis.call('SET', KEYS[1], 0)
  return 0
end

count = count - 1
redis.call('SET', KEYS[1], count, 'KEEPTTL')
return count
`
