// Package tavily 提供 Tavily 网络搜索客户端。
//
// 客户端实现管线的 WebSearcher 能力，默认排除广告域名，
// 并支持按每秒请求数限流。
package tavily
