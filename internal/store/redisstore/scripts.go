package redisstore

// insertSaleScript claims the ticket and the code in one step.
// KEYS: raffle hash, ticket hash, code key. ARGV: ticket number, code, sale json.
// Returns 0 on success, 1 ticket taken, 2 code taken, -1 unknown raffle.
const insertSaleScript = `
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
if redis.call('HEXISTS', KEYS[2], ARGV[1]) == 1 then
  return 1
end
if redis.call('EXISTS', KEYS[3]) == 1 then
  return 2
end
redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
redis.call('SET', KEYS[3], ARGV[3])
return 0
`

// recountScript copies the ticket hash size into the raffle.
// KEYS: raffle hash, ticket hash. Returns the count or -1 for an unknown raffle.
const recountScript = `
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
local sold = redis.call('HLEN', KEYS[2])
redis.call('HSET', KEYS[1], 'tickets_sold', sold)
return sold
`

// compareAndSetScript applies field/value pairs only while status matches.
// KEYS: raffle hash. ARGV: expected status, then field, value pairs.
const compareAndSetScript = `
if redis.call('HGET', KEYS[1], 'status') ~= ARGV[1] then
  return 0
end
for i = 2, #ARGV, 2 do
  redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
end
return 1
`
