// Package lightrag 提供 LightRAG 服务的检索客户端。
//
// 客户端实现管线的 Retriever 能力，将管线检索模式映射为
// LightRAG 查询模式（vector→local、graph→global、hybrid→hybrid）。
package lightrag
